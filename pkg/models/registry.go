package models

// ExtensionMetadata carries the display data attached to an extension map entry
type ExtensionMetadata struct {
	TitleAux    string `json:"title_aux"`
	NamePattern string `json:"nodename_pattern,omitempty"`
	Title       string `json:"title,omitempty"`
}

// ExtensionMapEntry lists the node types one source URL provides
type ExtensionMapEntry struct {
	SourceURL  string            `json:"source_url"`
	ClassNames []string          `json:"class_names"`
	Metadata   ExtensionMetadata `json:"metadata"`
}

// PackageCatalogEntry is an installable package as listed in the catalog
type PackageCatalogEntry struct {
	Author      string   `json:"author,omitempty"`
	Title       string   `json:"title"`
	ID          string   `json:"id,omitempty"`
	Reference   string   `json:"reference"`
	Files       []string `json:"files"`
	InstallType string   `json:"install_type"`
	Pip         []string `json:"pip,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ListsFile reports whether the entry references the given source URL
func (e PackageCatalogEntry) ListsFile(url string) bool {
	for _, f := range e.Files {
		if f == url {
			return true
		}
	}
	return false
}
