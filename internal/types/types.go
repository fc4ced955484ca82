package types

type Caption struct {
	Text         string  `json:"text" yaml:"text"`
	StartSeconds float64 `json:"start_sec" yaml:"start_sec"`
	EndSeconds   float64 `json:"end_sec" yaml:"end_sec"`
}

type Clip struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	Description   string    `json:"description" yaml:"description"`
	ViralityScore int       `json:"virality_score" yaml:"virality_score"`
	StartSeconds  float64   `json:"start_sec" yaml:"start_sec"`
	EndSeconds    float64   `json:"end_sec" yaml:"end_sec"`
	Captions      []Caption `json:"captions" yaml:"captions"`
}

// Manifest is the finalized analysis output: the source video and its clips.
// It is loaded once and never mutated afterwards.
type Manifest struct {
	Source string `json:"source" yaml:"source"`
	Clips  []Clip `json:"clips" yaml:"clips"`
}
