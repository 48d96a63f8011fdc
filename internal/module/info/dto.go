package info

// ModuleSummary describes one discovered module.
type ModuleSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Path        string   `json:"path"`
	Mount       string   `json:"mount,omitempty"`
	Requires    []string `json:"requires"`
	Router      bool     `json:"router"`
	API         bool     `json:"api"`
	Static      bool     `json:"static"`
	Init        bool     `json:"init"`
}

// AppSummary describes the root manifest.
type AppSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Env         string   `json:"env"`
	Modules     []string `json:"modules"`
}
