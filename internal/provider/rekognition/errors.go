package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrImageTooLarge indicates the frame exceeds the inline image limit
	ErrImageTooLarge = errors.New("image exceeds rekognition size limit")

	// ErrThrottled indicates the account ran out of request quota
	ErrThrottled = errors.New("rekognition request throttled")
)
