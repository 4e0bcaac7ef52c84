// Package secrets fetches credentials from Google Secret Manager. The Pear
// API password is the only secret the pipeline consumes.
package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// AccessSecretVersion returns the latest plaintext value of a secret. A
// failure here is fatal to the run: there is no degraded mode without
// vendor credentials.
func AccessSecretVersion(ctx context.Context, projectID, secretID string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("secrets.AccessSecretVersion: creating client: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID)
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("secrets.AccessSecretVersion: accessing %s: %w", name, err)
	}

	return string(resp.GetPayload().GetData()), nil
}
