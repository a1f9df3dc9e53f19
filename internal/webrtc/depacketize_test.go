package webrtc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fragments of a type 5 (IDR) NAL with NRI=3: FU indicator 0x7C, FU headers
// 0x85 (start), 0x05 (middle), 0x45 (end).
var (
	fuStart = []byte{0x7C, 0x85, 0x01, 0x02}
	fuMid   = []byte{0x7C, 0x05, 0x03, 0x04}
	fuEnd   = []byte{0x7C, 0x45, 0x05, 0x06}
)

func TestDepacketize_SingleNAL(t *testing.T) {
	d := NewH264Depacketizer()

	payload := []byte{0x65, 0x01, 0x02, 0x03}
	nalus := d.Depacketize(100, payload)

	require.Len(t, nalus, 1)
	assert.Equal(t, payload, nalus[0])
}

func TestDepacketize_STAPA(t *testing.T) {
	d := NewH264Depacketizer()

	sps := []byte{0x67, 0xAA, 0xBB}
	pps := []byte{0x68, 0xCC}
	payload := []byte{0x18, 0x00, 0x03}
	payload = append(payload, sps...)
	payload = append(payload, 0x00, 0x02)
	payload = append(payload, pps...)

	assert.Equal(t, [][]byte{sps, pps}, d.Depacketize(100, payload))
}

func TestDepacketize_STAPAStopsAtBadSizes(t *testing.T) {
	d := NewH264Depacketizer()

	assert.Empty(t, d.Depacketize(100, []byte{0x18, 0x00, 0x00}))
	assert.Empty(t, d.Depacketize(101, []byte{0x18, 0x00, 0x09, 0x67}))
}

func TestDepacketize_FUA(t *testing.T) {
	d := NewH264Depacketizer()

	assert.Nil(t, d.Depacketize(100, fuStart))
	assert.Nil(t, d.Depacketize(101, fuMid))

	nalus := d.Depacketize(102, fuEnd)
	require.Len(t, nalus, 1)
	assert.Equal(t, []byte{0x65, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, nalus[0])
}

func TestDepacketize_FUAAcrossSequenceWrap(t *testing.T) {
	d := NewH264Depacketizer()

	assert.Nil(t, d.Depacketize(65535, fuStart))
	require.Len(t, d.Depacketize(0, fuEnd), 1)
}

func TestDepacketize_FUADropsOnSequenceGap(t *testing.T) {
	d := NewH264Depacketizer()

	assert.Nil(t, d.Depacketize(100, fuStart))
	assert.Nil(t, d.Depacketize(102, fuMid), "gap drops the chain")
	assert.Nil(t, d.Depacketize(103, fuEnd), "end of a dropped chain is ignored")

	// the next chain starts clean
	assert.Nil(t, d.Depacketize(104, fuStart))
	require.Len(t, d.Depacketize(105, fuEnd), 1)
}

func TestDepacketize_EmptyPayload(t *testing.T) {
	d := NewH264Depacketizer()

	assert.Nil(t, d.Depacketize(0, nil))
	assert.Nil(t, d.Depacketize(0, []byte{}))
}

func TestDepacketize_InstanceIsolation(t *testing.T) {
	d1 := NewH264Depacketizer()
	d2 := NewH264Depacketizer()

	d1.Depacketize(100, fuStart)

	assert.Nil(t, d2.Depacketize(101, fuEnd), "orphan end fragment")
	assert.Len(t, d1.Depacketize(101, fuEnd), 1)
}

func TestWriteAnnexB(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeAnnexB(&buf, [][]byte{{0x67, 0x01}, {}, {0x68}}))

	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0x01, 0, 0, 0, 1, 0x68}, buf.Bytes())
}
