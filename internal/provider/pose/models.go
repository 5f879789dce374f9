package pose

// DetectRequest for POST /detect
type DetectRequest struct {
	Img           string  `json:"img"` // base64 encoded image
	MinConfidence float64 `json:"min_confidence"`
}

// DetectResponse from POST /detect
type DetectResponse struct {
	People []PersonResult `json:"people"`
}

type PersonResult struct {
	Box        Box          `json:"box"`
	Confidence float64      `json:"confidence"`
	Keypoints  [][3]float64 `json:"keypoints"` // COCO-17 order, [x, y, confidence]
}

type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ClassifyRequest for POST /classify
type ClassifyRequest struct {
	Sequence [][]float32 `json:"sequence"`
}

// ClassifyResponse from POST /classify
type ClassifyResponse struct {
	Probabilities map[string]float64 `json:"probabilities"`
}
