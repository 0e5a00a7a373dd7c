package gemini

import "errors"

// Config for the Vertex AI Gemini client.
type Config struct {
	ProjectID       string
	Region          string // default us-central1
	Model           string // default gemini-1.5-flash
	CredentialsFile string // service-account JSON
	Temperature     float32
	// StagingBucket, when set, makes documents travel as gs:// references
	// instead of inline bytes. Objects are deleted after the call.
	StagingBucket string
}

func (c *Config) withDefaults() error {
	if c.ProjectID == "" {
		return errors.New("gemini: project id is required")
	}
	if c.Region == "" {
		c.Region = "us-central1"
	}
	if c.Model == "" {
		c.Model = "gemini-1.5-flash"
	}
	return nil
}
