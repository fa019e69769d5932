package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions turns configured credentials into client options. An inline
// JSON document wins over a file path; with neither, the GOOGLE_APPLICATION_*
// variables are consulted before falling back to default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	creds := strings.TrimSpace(credentials)
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	}
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
