package rekognition

// Config holds configuration for the Rekognition person detector
type Config struct {
	// Region is the AWS region where Rekognition is called (e.g., "us-east-1")
	Region string

	// MinConfidence is the Rekognition label confidence floor, in percent
	MinConfidence float32

	// MaxLabels bounds how many labels DetectLabels returns per frame
	MaxLabels int32
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 50,
		MaxLabels:     10,
	}
}
