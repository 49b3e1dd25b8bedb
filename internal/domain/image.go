package domain

// BuildRecipe describes how to build a toolchain image
type BuildRecipe struct {
	Dockerfile string `json:"dockerfile" mapstructure:"dockerfile"`
	ContextDir string `json:"context" mapstructure:"context"`
}

// ImageResolution is the outcome of resolving a tag to an image id
type ImageResolution struct {
	Tag     string `json:"tag"`
	ImageID string `json:"image_id"`
	Cached  bool   `json:"cached"`
}
