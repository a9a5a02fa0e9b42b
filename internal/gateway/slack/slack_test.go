package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundThreadKey(t *testing.T) {
	reply := Inbound{TS: "200.2", ThreadTS: "100.1"}
	assert.Equal(t, "100.1", reply.ThreadKey())

	root := Inbound{TS: "100.1"}
	assert.Equal(t, "100.1", root.ThreadKey())
}
