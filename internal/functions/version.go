package functions

// versionManifest is the launcher's list of released versions.
type versionManifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []manifestVersion `json:"versions"`
}

type manifestVersion struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1,omitempty"`
}

// versionLibrary is one entry of a version JSON's libraries array.
type versionLibrary struct {
	Name      string `json:"name"`
	Downloads struct {
		Artifact *libraryArtifact `json:"artifact,omitempty"`
	} `json:"downloads"`
}

type libraryArtifact struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

type versionLibraries struct {
	ID        string           `json:"id"`
	Libraries []versionLibrary `json:"libraries"`
}

// find returns the manifest entry for version id.
func (m *versionManifest) find(id string) (manifestVersion, bool) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return manifestVersion{}, false
}
