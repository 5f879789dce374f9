package deepface

import "errors"

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrNoFaceDetected      = errors.New("no face detected")
)
