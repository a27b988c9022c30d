package model

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Metadata describes the tensors the exported model expects and the
// constants its inputs were normalised with during training.
type Metadata struct {
	ImageSize            int        `yaml:"image_size" json:"image_size"`
	Layout               string     `yaml:"layout" json:"layout"`
	Classes              []string   `yaml:"classes" json:"classes"`
	AnatomSiteCategories []string   `yaml:"anatom_site_categories" json:"anatom_site_categories"`
	AgeMin               float64    `yaml:"age_min" json:"age_min"`
	AgeMax               float64    `yaml:"age_max" json:"age_max"`
	Inputs               InputNames `yaml:"inputs" json:"inputs"`
	Output               string     `yaml:"output" json:"output"`
}

type InputNames struct {
	Image      string `yaml:"image" json:"image"`
	Sex        string `yaml:"sex" json:"sex"`
	AnatomSite string `yaml:"anatom_site" json:"anatom_site"`
	Age        string `yaml:"age" json:"age"`
}

// ClinicalInfo is the validated patient metadata sent with a lesion image.
type ClinicalInfo struct {
	Sex        string
	Age        float64
	AnatomSite string
}

// Features are the encoded scalar inputs fed to the model next to the image.
type Features struct {
	Sex        float32
	AnatomSite float32
	Age        float32
}

type Diagnosis struct {
	Melanoma float64 `json:"Melanoma"`
	Nevus    float64 `json:"Nevus"`
}

type PredictionResponse struct {
	Diagnosis      Diagnosis `json:"diagnosis"`
	Interpretation string    `json:"interpretation"`
}
