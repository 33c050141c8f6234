package replicate

// ModelConfig describes one accepted inference model version.
type ModelConfig struct {
	Name     string
	InputKey string
}

// DefaultRemoveBgVersion is the background-removal model used when the
// caller does not pick one.
const DefaultRemoveBgVersion = "fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003"

// GenerateImageVersion is the text-to-image model behind /api/generate-image.
const GenerateImageVersion = "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"

// RemoveBgModels maps accepted background-removal version hashes to their
// configuration. Versions outside this map are rejected by the gateway.
var RemoveBgModels = map[string]ModelConfig{
	"fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003": {
		Name:     "cjwbw/rembg",
		InputKey: "image",
	},
	"95fcc2a26d3899cd6c2691c900465aaeff466285a65c14638cc5f36f34befaf1": {
		Name:     "lucataco/remove-bg",
		InputKey: "image",
	},
	"4067ee2a58f6c161d434a9c077cfa012820b8e076efa2772aa171e26557da919": {
		Name:     "smoretalk/rembg-enhance",
		InputKey: "image",
	},
}
