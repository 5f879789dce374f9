package domain

// EmbeddingDimension is the length of face embeddings produced by Facenet512.
const EmbeddingDimension = 512

// EnrolledIdentity is a person known to the identity store. ID maps to the
// external student record.
type EnrolledIdentity struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Embeddings  [][]float64 `json:"-"`
}

// FaceMatch is the result of matching one detected face against the store.
type FaceMatch struct {
	IdentityID string  `json:"identity_id"`
	Score      float64 `json:"score"`
}
