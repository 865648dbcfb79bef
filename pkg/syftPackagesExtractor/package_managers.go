package syftPackagesExtractor

import (
	"github.com/Checkmarx/containers-dependency-resolver/pkg/dependencyResolver"
	"github.com/anchore/syft/syft/pkg"
)

type PackageManagerType string

// Ecosystems shared with source resolution use the same names as dependencyResolver.DependencyType.
const (
	Npm           = PackageManagerType(dependencyResolver.Npm)
	Nuget         = PackageManagerType(dependencyResolver.Nuget)
	Maven         = PackageManagerType(dependencyResolver.Maven)
	Python        = PackageManagerType(dependencyResolver.Python)
	Go            = PackageManagerType(dependencyResolver.Go)
	Php           PackageManagerType = "Php"
	Ios           PackageManagerType = "Ios"
	Cpp           PackageManagerType = "Cpp"
	Ruby          PackageManagerType = "Ruby"
	JenkinsPlugin PackageManagerType = "JenkinsPlugin"
	Alpm          PackageManagerType = "Alpm"
	Portage       PackageManagerType = "Portage"
	Hackage       PackageManagerType = "Hackage"
	Rust          PackageManagerType = "Rust"
	Kb            PackageManagerType = "Kb"
	DartPub       PackageManagerType = "DartPub"
	R             PackageManagerType = "R"
	Binary        PackageManagerType = "Binary"
	Bitnami       PackageManagerType = "Bitnami"
	GithubAction  PackageManagerType = "GithubAction"
	Hex           PackageManagerType = "Hex"
	LinuxKernel   PackageManagerType = "LinuxKernel"
	Nix           PackageManagerType = "Nix"
	Opam          PackageManagerType = "Opam"
	LuaRocks      PackageManagerType = "LuaRocks"
	SwiplPack     PackageManagerType = "SwiplPack"
	Terraform     PackageManagerType = "Terraform"
	Homebrew      PackageManagerType = "Homebrew"
	Oval          PackageManagerType = "Oval"
	Unsupported   PackageManagerType = "Unsupported"
)

var packageManagers = map[pkg.Type]PackageManagerType{
	pkg.ApkPkg:                  Oval,
	pkg.DebPkg:                  Oval,
	pkg.RpmPkg:                  Oval,
	pkg.GemPkg:                  Ruby,
	pkg.NpmPkg:                  Npm,
	pkg.PythonPkg:               Python,
	pkg.PhpComposerPkg:          Php,
	pkg.PhpPeclPkg:              Php,
	pkg.PhpPearPkg:              Php,
	pkg.JavaPkg:                 Maven,
	pkg.GoModulePkg:             Go,
	pkg.DotnetPkg:               Nuget,
	pkg.CocoapodsPkg:            Ios,
	pkg.ConanPkg:                Cpp,
	pkg.JenkinsPluginPkg:        JenkinsPlugin,
	pkg.AlpmPkg:                 Alpm,
	pkg.PortagePkg:              Portage,
	pkg.HackagePkg:              Hackage,
	pkg.RustPkg:                 Rust,
	pkg.KbPkg:                   Kb,
	pkg.DartPubPkg:              DartPub,
	pkg.Rpkg:                    R,
	pkg.BinaryPkg:               Binary,
	pkg.BitnamiPkg:              Bitnami,
	pkg.ErlangOTPPkg:            Hex,
	pkg.HexPkg:                  Hex,
	pkg.GithubActionPkg:         GithubAction,
	pkg.GithubActionWorkflowPkg: GithubAction,
	pkg.LinuxKernelPkg:          LinuxKernel,
	pkg.LinuxKernelModulePkg:    LinuxKernel,
	pkg.NixPkg:                  Nix,
	pkg.OpamPkg:                 Opam,
	pkg.LuaRocksPkg:             LuaRocks,
	pkg.SwiplPackPkg:            SwiplPack,
	pkg.TerraformPkg:            Terraform,
	pkg.HomebrewPkg:             Homebrew,
}

// packageTypeToPackageManager maps syft package types; unknown and new types are Unsupported.
func packageTypeToPackageManager(packageType pkg.Type) string {
	if manager, ok := packageManagers[packageType]; ok {
		return string(manager)
	}
	return string(Unsupported)
}
