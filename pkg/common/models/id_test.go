package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42, "donor_id": "D-7"}`), &doc))
	assert.Equal(t, ID("42"), doc.ID)
	assert.Equal(t, ID("D-7"), doc.DonorID)
}

func TestIDMarshalsIntegersAsNumbers(t *testing.T) {
	out, err := json.Marshal(ApprovalRequest{DonorID: "12", Comment: "ok"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"donor_id":12`)
	assert.NotContains(t, string(out), "document_id")

	out, err = json.Marshal(ApprovalRequest{DonorID: "abc"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"donor_id":"abc"`)
}
