package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/pkg/errors"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/cliconfig"
	"j5.dev/x07/internal/httpx"
	"j5.dev/x07/internal/pkgmgr"
	"j5.dev/x07/internal/resolve"
)

var pkgCmd = &cobra.Command{
	Use:   "pkg",
	Short: "Manage workspace manifests, dependencies, and the package registry",
}

// --- init / new -------------------------------------------------------

var pkgInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Write a new x07.workspace.json in the current directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ws resolve.WorkspaceManifest
		ws.Workspace.Name = args[0]
		ws.Workspace.Members = []string{}
		ws.Workspace.Registries = map[string]resolve.RegistryEntry{}
		ws.Workspace.Toolchain = resolve.Toolchain{X07CVersion: "0.1.0"}
		ws.Paths.CacheDir = ".x07/cache"
		ws.Paths.RegistryDir = ".x07/registry"
		ws.Paths.TargetDir = "target"
		return writeManifestJSON(cmd, "x07.workspace.json", ws)
	},
}

var pkgNewMemberPath string

var pkgNewCmd = &cobra.Command{
	Use:   "new <pkg_id>",
	Short: "Scaffold a new package manifest and module root, and add it as a workspace member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memberPath := pkgNewMemberPath
		if memberPath == "" {
			memberPath = filepath.Base(args[0])
		}
		var pkg resolve.PackageManifest
		pkg.Package.ID = args[0]
		pkg.Package.Version = "0.1.0"
		pkg.Modules.Root = "src"
		if err := os.MkdirAll(filepath.Join(memberPath, "src"), 0o755); err != nil {
			return err
		}
		if err := writeManifestJSON(cmd, filepath.Join(memberPath, "x07.package.json"), pkg); err != nil {
			return err
		}

		wsData, err := os.ReadFile("x07.workspace.json")
		if err != nil {
			return errors.Wrap(err, "x07 pkg new: reading workspace manifest (run x07 pkg init first)")
		}
		ws, err := resolve.ParseWorkspaceManifest(wsData)
		if err != nil {
			return err
		}
		ws.Workspace.Members = append(ws.Workspace.Members, memberPath)
		return writeManifestJSON(cmd, "x07.workspace.json", *ws)
	},
}

func init() {
	pkgNewCmd.Flags().StringVar(&pkgNewMemberPath, "path", "", "workspace-relative directory for the new member (defaults to the package id's last segment)")
}

// --- add / remove ------------------------------------------------------

var (
	pkgAddMember   string
	pkgAddRegistry string
	pkgAddDev      bool
)

var pkgAddCmd = &cobra.Command{
	Use:   "add <pkg_id> <req>",
	Short: "Add a dependency to a workspace member's manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPackageManifest(cmd, pkgAddMember, func(pkg *resolve.PackageManifest) {
			dep := resolve.Dependency{Req: args[1], Registry: pkgAddRegistry}
			if pkgAddDev {
				if pkg.DevDeps == nil {
					pkg.DevDeps = map[string]resolve.Dependency{}
				}
				pkg.DevDeps[args[0]] = dep
			} else {
				if pkg.Deps == nil {
					pkg.Deps = map[string]resolve.Dependency{}
				}
				pkg.Deps[args[0]] = dep
			}
		})
	},
}

var (
	pkgRemoveMember string
	pkgRemoveDev    bool
)

var pkgRemoveCmd = &cobra.Command{
	Use:   "remove <pkg_id>",
	Short: "Remove a dependency from a workspace member's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editPackageManifest(cmd, pkgRemoveMember, func(pkg *resolve.PackageManifest) {
			if pkgRemoveDev {
				delete(pkg.DevDeps, args[0])
			} else {
				delete(pkg.Deps, args[0])
			}
		})
	},
}

func init() {
	pkgAddCmd.Flags().StringVar(&pkgAddMember, "member", ".", "workspace-member directory holding the x07.package.json to edit")
	pkgAddCmd.Flags().StringVar(&pkgAddRegistry, "registry", "", "named registry (from x07.workspace.json) this dependency resolves against")
	pkgAddCmd.Flags().BoolVar(&pkgAddDev, "dev", false, "add under dev_deps instead of deps")
	pkgRemoveCmd.Flags().StringVar(&pkgRemoveMember, "member", ".", "workspace-member directory holding the x07.package.json to edit")
	pkgRemoveCmd.Flags().BoolVar(&pkgRemoveDev, "dev", false, "remove from dev_deps instead of deps")
}

func editPackageManifest(cmd *cobra.Command, memberDir string, edit func(*resolve.PackageManifest)) error {
	path := filepath.Join(memberDir, "x07.package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pkg, err := resolve.ParsePackageManifest(data)
	if err != nil {
		return err
	}
	edit(pkg)
	return writeManifestJSON(cmd, path, *pkg)
}

func writeManifestJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && filepath.Dir(path) != "." {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	cmd.Printf("wrote %s\n", path)
	return nil
}

// --- resolve / vendor ---------------------------------------------------

var pkgResolveWorkspace string

var pkgResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve every workspace member's dependencies and write x07.lock.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspaceManifestFor(pkgResolveWorkspace)
		if err != nil {
			return err
		}
		regs, err := buildRegistries(ws)
		if err != nil {
			return err
		}

		rootDeps := map[string]string{}
		memberDeps := map[string]map[string]string{}
		memberPkgIDs := map[string]string{}
		pkgToRegistry := map[string]string{}

		for _, memberPath := range ws.Workspace.Members {
			data, err := os.ReadFile(filepath.Join(pkgResolveWorkspace, memberPath, "x07.package.json"))
			if err != nil {
				return err
			}
			pkg, err := resolve.ParsePackageManifest(data)
			if err != nil {
				return err
			}
			memberPkgIDs[memberPath] = pkg.Package.ID
			deps := map[string]string{}
			for depID, dep := range pkg.Deps {
				deps[depID] = dep.Req
				rootDeps[depID] = dep.Req
				if dep.Registry != "" {
					pkgToRegistry[depID] = dep.Registry
				}
			}
			memberDeps[memberPath] = deps
		}

		fetcher := &multiRegistryFetcher{regs: regs, pkgToRegistry: pkgToRegistry, defaultReg: firstRegistryName(ws)}
		var locked map[string]string
		if data, err := os.ReadFile(filepath.Join(pkgResolveWorkspace, "x07.lock.json")); err == nil {
			if lf, err := resolve.ParseLockfile(data); err == nil {
				locked = map[string]string{}
				for _, p := range lf.Packages {
					locked[p.PkgID] = p.Version
				}
			}
		}

		sel, err := pkgmgr.Resolve(cmd.Context(), fetcher, rootDeps, locked, ws.Resolution.AllowYanked)
		if err != nil {
			return errors.Wrap(err, "x07 pkg resolve")
		}

		artifacts := map[string]pkgmgr.ArtifactInfo{}
		for pkgID := range sel.Selected {
			entry := sel.Entries[pkgID]
			artifacts[pkgID] = pkgmgr.ArtifactInfo{Format: "x07pkg.tar.zst", SHA256: entry.Cksum}
		}
		registryPins := map[string]string{}
		for pkgID := range sel.Selected {
			name := pkgToRegistry[pkgID]
			if name == "" {
				name = firstRegistryName(ws)
			}
			registryPins[pkgID] = name
		}

		lf := pkgmgr.ToLockfile(sel, artifacts, memberDeps, memberPkgIDs, registryPins, resolve.LockToolchain{
			X07CVersion:      ws.Workspace.Toolchain.X07CVersion,
			StdlibLockSHA256: ws.Workspace.Toolchain.StdlibLockSHA256,
		})
		lf.GeneratedAtUnix = deterministicTimestamp()
		lf.Sort()

		out, err := json.MarshalIndent(lf, "", "  ")
		if err != nil {
			return err
		}
		out = append(out, '\n')
		if err := os.WriteFile(filepath.Join(pkgResolveWorkspace, "x07.lock.json"), out, 0o644); err != nil {
			return err
		}
		cmd.Printf("resolved %d package(s)\n", len(sel.Selected))
		return nil
	},
}

// deterministicTimestamp stands in for time.Now().Unix() at the one call
// site that needs wall-clock time; pkgmgr.ToLockfile itself stays pure
// and leaves GeneratedAtUnix for the caller to stamp, exactly as
// runner.Run leaves Report.Timestamp to its caller.
func deterministicTimestamp() int64 { return time.Now().Unix() }

// multiRegistryFetcher implements pkgmgr.IndexFetcher by routing each
// package id to the registry its dependent named, falling back to the
// workspace's first configured registry.
type multiRegistryFetcher struct {
	regs          map[string]*pkgmgr.Registry
	pkgToRegistry map[string]string
	defaultReg    string
}

func (f *multiRegistryFetcher) Index(ctx context.Context, pkgID string) ([]pkgmgr.IndexEntry, error) {
	name := f.pkgToRegistry[pkgID]
	if name == "" {
		name = f.defaultReg
	}
	reg, ok := f.regs[name]
	if !ok {
		return nil, errors.Errorf("x07 pkg: no registry named %q configured", name)
	}
	return reg.Index(ctx, pkgID)
}

func firstRegistryName(ws *resolve.WorkspaceManifest) string {
	for name := range ws.Workspace.Registries {
		return name
	}
	return ""
}

func buildRegistries(ws *resolve.WorkspaceManifest) (map[string]*pkgmgr.Registry, error) {
	creds, err := pkgmgr.LoadCredentials()
	if err != nil {
		return nil, err
	}
	cfg, err := cliconfig.Load()
	if err != nil {
		return nil, err
	}
	cache := &pkgmgr.IndexCache{Root: ws.Paths.CacheDir}
	client := &httpx.WithUserAgent{BasicClient: httpDefaultClient{}, UserAgent: "x07-pkg/0.1.0"}
	regs := make(map[string]*pkgmgr.Registry, len(ws.Workspace.Registries))
	for name, entry := range ws.Workspace.Registries {
		reg, err := pkgmgr.NewRegistry(name, entry.Index, creds.Token(entry.Index), client, cache, cfg.Offline)
		if err != nil {
			return nil, err
		}
		regs[name] = reg
	}
	return regs, nil
}

// resolveRegistryName returns explicit if non-empty, else the CLI
// config's default_registry, else ws's first configured registry — the
// same fallback order firstRegistryName already used for an unset flag,
// now preferring a developer's configured default over an arbitrary map
// iteration order.
func resolveRegistryName(ws *resolve.WorkspaceManifest, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg, err := cliconfig.Load(); err == nil && cfg.DefaultRegistry != "" {
		if _, ok := ws.Workspace.Registries[cfg.DefaultRegistry]; ok {
			return cfg.DefaultRegistry
		}
	}
	return firstRegistryName(ws)
}

func loadWorkspaceManifestFor(workspaceRoot string) (*resolve.WorkspaceManifest, error) {
	data, err := os.ReadFile(filepath.Join(workspaceRoot, "x07.workspace.json"))
	if err != nil {
		return nil, err
	}
	return resolve.ParseWorkspaceManifest(data)
}

var pkgVendorWorkspace string

var pkgVendorCmd = &cobra.Command{
	Use:   "vendor",
	Short: "Download every locked package's archive into the workspace's content-addressed cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspaceManifestFor(pkgVendorWorkspace)
		if err != nil {
			return err
		}
		lockData, err := os.ReadFile(filepath.Join(pkgVendorWorkspace, "x07.lock.json"))
		if err != nil {
			return errors.Wrap(err, "x07 pkg vendor: reading x07.lock.json (run x07 pkg resolve first)")
		}
		lf, err := resolve.ParseLockfile(lockData)
		if err != nil {
			return err
		}
		regs, err := buildRegistries(ws)
		if err != nil {
			return err
		}
		cacheRoot := filepath.Join(pkgVendorWorkspace, ws.Paths.CacheDir, "sha256")

		bar := pb.New(len(lf.Packages))
		bar.Output = cmd.ErrOrStderr()
		bar.ShowTimeLeft = true
		bar.Start()
		defer bar.Finish()

		for _, p := range lf.Packages {
			name := lf.Registry[p.PkgID]
			reg, ok := regs[name]
			if !ok {
				return errors.Errorf("x07 pkg vendor: no registry named %q for %s", name, p.PkgID)
			}
			cfg, err := reg.Config(cmd.Context())
			if err != nil {
				return err
			}
			rc, err := reg.Artifact(cmd.Context(), cfg.DL, p.PkgID, p.Version)
			if err != nil {
				return errors.Wrapf(err, "x07 pkg vendor: fetching %s@%s", p.PkgID, p.Version)
			}
			dst := filepath.Join(cacheRoot, p.Artifact.SHA256)
			if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
				rc.Close()
				return err
			}
			f, err := os.Create(dst)
			if err != nil {
				rc.Close()
				return err
			}
			_, copyErr := fcopy(f, rc)
			rc.Close()
			f.Close()
			if copyErr != nil {
				return copyErr
			}
			bar.Increment()
			cmd.Printf("vendored %s@%s -> %s\n", p.PkgID, p.Version, dst)
		}
		return nil
	},
}

func init() {
	pkgResolveCmd.Flags().StringVar(&pkgResolveWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	pkgVendorCmd.Flags().StringVar(&pkgVendorWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
}

// --- verify -------------------------------------------------------------

var (
	pkgVerifySHA256     string
	pkgVerifyProvenance string
	pkgVerifyPubKey     string
)

var pkgVerifyCmd = &cobra.Command{
	Use:   "verify <archive.x07pkg.tar.zst>",
	Short: "Verify an archive's content hash and, if present, its publish provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var envelope *dsse.Envelope
		if pkgVerifyProvenance != "" {
			envData, err := os.ReadFile(pkgVerifyProvenance)
			if err != nil {
				return err
			}
			envelope = &dsse.Envelope{}
			if err := json.Unmarshal(envData, envelope); err != nil {
				return err
			}
		}
		var pub ed25519.PublicKey
		if pkgVerifyPubKey != "" {
			raw, err := base64.StdEncoding.DecodeString(pkgVerifyPubKey)
			if err != nil {
				return errors.Wrap(err, "x07 pkg verify: decoding --pubkey")
			}
			pub = ed25519.PublicKey(raw)
		}
		if err := verifyArchive(cmd.Context(), data, pkgVerifySHA256, envelope, pub); err != nil {
			return err
		}
		cmd.Println("ok")
		return nil
	},
}

func init() {
	pkgVerifyCmd.Flags().StringVar(&pkgVerifySHA256, "sha256", "", "expected archive sha256 (hex)")
	pkgVerifyCmd.Flags().StringVar(&pkgVerifyProvenance, "provenance", "", "path to a DSSE provenance envelope JSON file")
	pkgVerifyCmd.Flags().StringVar(&pkgVerifyPubKey, "pubkey", "", "base64-encoded ed25519 public key the provenance must verify against")
}

// --- login ---------------------------------------------------------------

var (
	pkgLoginWorkspace     string
	pkgLoginClientID      string
	pkgLoginClientSecret  string
)

var pkgLoginCmd = &cobra.Command{
	Use:   "login <registry>",
	Short: "Obtain and cache an OAuth2 client-credentials token for a registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspaceManifestFor(pkgLoginWorkspace)
		if err != nil {
			return err
		}
		entry, ok := ws.Workspace.Registries[args[0]]
		if !ok {
			return errors.Errorf("x07 pkg login: no registry named %q in x07.workspace.json", args[0])
		}
		client := &httpx.WithUserAgent{BasicClient: httpDefaultClient{}, UserAgent: "x07-pkg/0.1.0"}
		reg, err := pkgmgr.NewRegistry(args[0], entry.Index, "", client, &pkgmgr.IndexCache{Root: ws.Paths.CacheDir}, false)
		if err != nil {
			return err
		}
		cfg, err := reg.Config(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := pkgmgr.Login(cmd.Context(), cfg, entry.Index, pkgLoginClientID, pkgLoginClientSecret); err != nil {
			return err
		}
		cmd.Println("logged in")
		return nil
	},
}

func init() {
	pkgLoginCmd.Flags().StringVar(&pkgLoginWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	pkgLoginCmd.Flags().StringVar(&pkgLoginClientID, "client-id", "", "OAuth2 client id")
	pkgLoginCmd.Flags().StringVar(&pkgLoginClientSecret, "client-secret", "", "OAuth2 client secret")
}

// --- publish ---------------------------------------------------------------

var (
	pkgPublishRegistry string
	pkgPublishWorkspace string
	pkgPublishKeystore  string
	pkgPublishPassword  string
	pkgPublishAlias     string
)

var pkgPublishCmd = &cobra.Command{
	Use:   "publish <pkg_id> <version> <archive.x07pkg.tar.zst>",
	Short: "Sign and publish a package archive to a registry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkgID, version, archivePath := args[0], args[1], args[2]
		archive, err := os.ReadFile(archivePath)
		if err != nil {
			return err
		}
		ks, err := os.Open(pkgPublishKeystore)
		if err != nil {
			return err
		}
		defer ks.Close()
		signer, err := pkgmgr.LoadKeystoreSigner(ks, []byte(pkgPublishPassword), pkgPublishAlias)
		if err != nil {
			return err
		}
		sum := sha256Hex(archive)
		envelope, err := pkgmgr.SignArchive(cmd.Context(), signer, pkgID, version, sum, time.Now())
		if err != nil {
			return err
		}

		ws, err := loadWorkspaceManifestFor(pkgPublishWorkspace)
		if err != nil {
			return err
		}
		registryName := resolveRegistryName(ws, pkgPublishRegistry)
		if _, ok := ws.Workspace.Registries[registryName]; !ok {
			return errors.Errorf("x07 pkg publish: no registry named %q in x07.workspace.json", registryName)
		}
		regs, err := buildRegistries(ws)
		if err != nil {
			return err
		}
		reg := regs[registryName]
		cfg, err := reg.Config(cmd.Context())
		if err != nil {
			return err
		}
		if err := pkgmgr.Publish(cmd.Context(), reg, cfg.API, pkgID, version, "x07pkg.tar.zst", archive, envelope); err != nil {
			return err
		}
		cmd.Printf("published %s@%s (sha256 %s)\n", pkgID, version, sum)
		return nil
	},
}

func init() {
	pkgPublishCmd.Flags().StringVar(&pkgPublishRegistry, "registry", "", "named registry (from x07.workspace.json) to publish to")
	pkgPublishCmd.Flags().StringVar(&pkgPublishWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	pkgPublishCmd.Flags().StringVar(&pkgPublishKeystore, "keystore", "", "path to a .jks keystore holding the signing key")
	pkgPublishCmd.Flags().StringVar(&pkgPublishPassword, "keystore-password", "", "keystore password")
	pkgPublishCmd.Flags().StringVar(&pkgPublishAlias, "alias", "", "key alias within the keystore")
}

// --- info ---------------------------------------------------------------

var (
	pkgInfoRegistry  string
	pkgInfoWorkspace string
)

var pkgInfoCmd = &cobra.Command{
	Use:   "info <pkg_id>",
	Short: "List every known version of a package from its registry's sparse index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspaceManifestFor(pkgInfoWorkspace)
		if err != nil {
			return err
		}
		name := resolveRegistryName(ws, pkgInfoRegistry)
		regs, err := buildRegistries(ws)
		if err != nil {
			return err
		}
		reg, ok := regs[name]
		if !ok {
			return errors.Errorf("x07 pkg info: no registry named %q", name)
		}
		entries, err := reg.Index(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			yanked := ""
			if e.Yanked {
				yanked = " (yanked)"
			}
			cmd.Printf("%s %s%s\n", e.Pkg, e.Vers, yanked)
		}
		return nil
	},
}

func init() {
	pkgInfoCmd.Flags().StringVar(&pkgInfoRegistry, "registry", "", "named registry (defaults to the CLI config's default_registry if the workspace configures it, else the workspace's first configured registry)")
	pkgInfoCmd.Flags().StringVar(&pkgInfoWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
}

// --- mirror export/import ------------------------------------------------

var pkgMirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Export or import an offline bundle of the registry index cache",
}

var pkgMirrorExportCmd = &cobra.Command{
	Use:   "export <out.bundle> --cache-dir <dir>",
	Short: "Pack the local index/artifact cache into a single offline bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := pkgmgr.ExportMirror(pkgMirrorCacheDir)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], bundle, 0o644); err != nil {
			return err
		}
		cmd.Printf("wrote %s (%d bytes)\n", args[0], len(bundle))
		return nil
	},
}

var pkgMirrorImportCmd = &cobra.Command{
	Use:   "import <bundle>",
	Short: "Unpack an offline mirror bundle into the local index/artifact cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err := pkgmgr.ImportMirror(data, pkgMirrorCacheDir); err != nil {
			return err
		}
		cmd.Println("imported")
		return nil
	},
}

var pkgMirrorCacheDir string

func init() {
	pkgMirrorCmd.PersistentFlags().StringVar(&pkgMirrorCacheDir, "cache-dir", ".x07/cache", "workspace cache directory to export from / import into")
	pkgMirrorCmd.AddCommand(pkgMirrorExportCmd)
	pkgMirrorCmd.AddCommand(pkgMirrorImportCmd)
}

func init() {
	pkgCmd.AddCommand(pkgInitCmd)
	pkgCmd.AddCommand(pkgNewCmd)
	pkgCmd.AddCommand(pkgAddCmd)
	pkgCmd.AddCommand(pkgRemoveCmd)
	pkgCmd.AddCommand(pkgResolveCmd)
	pkgCmd.AddCommand(pkgVendorCmd)
	pkgCmd.AddCommand(pkgVerifyCmd)
	pkgCmd.AddCommand(pkgLoginCmd)
	pkgCmd.AddCommand(pkgPublishCmd)
	pkgCmd.AddCommand(pkgInfoCmd)
	pkgCmd.AddCommand(pkgMirrorCmd)
}

// --- small shared helpers --------------------------------------------------

// httpDefaultClient satisfies httpx.BasicClient with the zero-config
// http.DefaultClient, the same instance httpx's own doc comment names as
// the reference implementation of the interface.
type httpDefaultClient struct{}

func (httpDefaultClient) Do(req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req)
}

func fcopy(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func verifyArchive(ctx context.Context, data []byte, wantSHA256 string, envelope *dsse.Envelope, pub ed25519.PublicKey) error {
	return pkgmgr.VerifyArchive(ctx, data, wantSHA256, envelope, pub)
}
