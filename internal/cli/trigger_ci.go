package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/apprelay/apprelay/internal/model"
)

type CITrigger struct {
	Server      string `json:"-"`
	ProjectName string `json:"projectName"`
	Branch      string `json:"branch"`
	TriggeredBy string `json:"triggeredByUsername"`
	Platform    string `json:"platform"`
	Channel     string `json:"channel"`
}

// TriggerCI asks the server to start a CI build and returns its placeholder record.
func TriggerCI(ctx context.Context, client *http.Client, t CITrigger) (*model.Build, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(t.Server, "/") + "/ci/trigger"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST ci/trigger: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		NewBuild *model.Build `json:"newBuild"`
		Error    *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusAccepted {
		if result.Error != nil {
			return nil, fmt.Errorf("server returned %d: %s: %s", resp.StatusCode, result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if result.NewBuild == nil {
		return nil, fmt.Errorf("server response has no build")
	}
	return result.NewBuild, nil
}
