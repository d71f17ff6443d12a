package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/pkg/util"
)

func TestRunHashKey(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runHashKey(cmd, []string{"  secret  "}))
	hash := strings.TrimSpace(out.String())
	assert.True(t, util.CheckKey("secret", hash))

	assert.Error(t, runHashKey(cmd, []string{"   "}))
}
