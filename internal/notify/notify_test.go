package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apprelay/apprelay/internal/model"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	b := &model.Build{ID: "b1", AppName: "Acme", VersionName: "1.2.0", Platform: model.PlatformAndroid, Channel: model.ChannelBeta}

	require.NoError(t, n.NewBuild(context.Background(), b))
	require.NoError(t, n.NewFeedback(context.Background(), b, &model.Feedback{User: "qa", Comment: "crash on start"}))

	dec := json.NewDecoder(&buf)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "new build available", first["msg"])
	assert.Equal(t, "b1", first["build"])
	assert.Equal(t, "1.2.0", first["version"])
	assert.Equal(t, "new feedback", second["msg"])
	assert.Equal(t, "qa", second["user"])
}
