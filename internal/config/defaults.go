package config

// languageDefaults holds the fence markers and staging file extension for
// common languages. Languages not listed use their own name for both.
var languageDefaults = map[string]struct {
	markers []string
	ext     string
}{
	"bash":       {[]string{"bash", "sh", "zsh"}, ".sh"},
	"c":          {[]string{"c", "h"}, ".c"},
	"clojure":    {[]string{"clojure", "clj"}, ".clj"},
	"cmake":      {[]string{"cmake", "cmake.in"}, ".cmake"},
	"cpp":        {[]string{"cpp", "hpp", "cc", "hh", "c++", "h++", "cxx", "hxx"}, ".cpp"},
	"crystal":    {[]string{"crystal", "cr"}, ".cr"},
	"csharp":     {[]string{"csharp", "cs"}, ".cs"},
	"css":        {[]string{"css"}, ".css"},
	"d":          {[]string{"d"}, ".d"},
	"dart":       {[]string{"dart"}, ".dart"},
	"dockerfile": {[]string{"dockerfile", "docker"}, ".dockerfile"},
	"elixir":     {[]string{"elixir"}, ".ex"},
	"elm":        {[]string{"elm"}, ".elm"},
	"erlang":     {[]string{"erlang", "erl"}, ".erl"},
	"fortran":    {[]string{"fortran", "f90", "f95"}, ".f90"},
	"fsharp":     {[]string{"fsharp", "fs", "fsx", "fsi", "fsscript"}, ".fs"},
	"go":         {[]string{"go", "golang"}, ".go"},
	"graphql":    {[]string{"graphql", "gql"}, ".graphql"},
	"groovy":     {[]string{"groovy"}, ".groovy"},
	"haskell":    {[]string{"haskell", "hs"}, ".hs"},
	"html":       {[]string{"html", "xhtml"}, ".html"},
	"java":       {[]string{"java", "jsp"}, ".java"},
	"javascript": {[]string{"javascript", "js", "jsx"}, ".js"},
	"json":       {[]string{"json", "jsonc", "json5"}, ".json"},
	"julia":      {[]string{"julia", "julia-repl"}, ".jl"},
	"kotlin":     {[]string{"kotlin", "kt"}, ".kt"},
	"lua":        {[]string{"lua"}, ".lua"},
	"makefile":   {[]string{"makefile", "mk", "mak", "make"}, ".mk"},
	"nim":        {[]string{"nim", "nimrod"}, ".nim"},
	"nix":        {[]string{"nix"}, ".nix"},
	"objectivec": {[]string{"objectivec", "mm", "objc", "obj-c"}, ".m"},
	"ocaml":      {[]string{"ocaml", "ml"}, ".ml"},
	"perl":       {[]string{"perl", "pl", "pm"}, ".pl"},
	"php":        {[]string{"php"}, ".php"},
	"powershell": {[]string{"powershell", "ps", "ps1"}, ".ps1"},
	"protobuf":   {[]string{"protobuf"}, ".proto"},
	"python":     {[]string{"python", "py", "gyp"}, ".py"},
	"r":          {[]string{"r"}, ".r"},
	"ruby":       {[]string{"ruby", "rb", "gemspec", "podspec", "thor", "irb"}, ".rb"},
	"rust":       {[]string{"rust", "rs"}, ".rs"},
	"scala":      {[]string{"scala"}, ".scala"},
	"scheme":     {[]string{"scheme"}, ".scm"},
	"scss":       {[]string{"scss"}, ".scss"},
	"shell":      {[]string{"shell", "console"}, ".sh"},
	"solidity":   {[]string{"solidity", "sol"}, ".sol"},
	"sql":        {[]string{"sql"}, ".sql"},
	"swift":      {[]string{"swift"}, ".swift"},
	"toml":       {[]string{"toml"}, ".toml"},
	"typescript": {[]string{"typescript", "ts", "tsx", "mts", "cts"}, ".ts"},
	"verilog":    {[]string{"verilog", "v"}, ".v"},
	"vhdl":       {[]string{"vhdl"}, ".vhd"},
	"wasm":       {[]string{"wasm"}, ".wat"},
	"xml":        {[]string{"xml", "rss", "atom", "xjb", "xsd", "xsl", "plist", "svg"}, ".xml"},
	"yaml":       {[]string{"yaml", "yml"}, ".yaml"},
	"zig":        {[]string{"zig"}, ".zig"},
}

// DefaultFenceMarkers returns the fence markers recognized for a language
// whose configuration does not list any.
func DefaultFenceMarkers(language string) []string {
	if d, ok := languageDefaults[language]; ok {
		return append([]string(nil), d.markers...)
	}
	return []string{language}
}

// FileExtension returns the staging file extension for a language.
func FileExtension(language string) string {
	if d, ok := languageDefaults[language]; ok {
		return d.ext
	}
	return "." + language
}

// FenceMarkers returns the configured markers, or the defaults for name.
func (l LanguageConfig) Markers(name string) []string {
	if len(l.FenceMarkers) > 0 {
		return l.FenceMarkers
	}
	return DefaultFenceMarkers(name)
}
