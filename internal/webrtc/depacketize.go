package webrtc

import "io"

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// H264Depacketizer extracts NAL units from RTP H264 payloads.
// Each remote video track gets its own instance; FU-A reassembly state is
// per stream.
type H264Depacketizer struct {
	fuaBuf  []byte
	inFU    bool
	lastSeq uint16
}

// NewH264Depacketizer creates a new depacketizer with its own reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize extracts NAL units from one RTP H264 payload with sequence
// number seq. Handles single NAL, STAP-A, and FU-A packet types. A FU-A chain
// that loses a packet is dropped whole.
func (d *H264Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	if len(payload) < 1 {
		return nil
	}

	naluType := payload[0] & 0x1f

	switch {
	case naluType >= 1 && naluType <= 23:
		d.resetFU()
		return [][]byte{payload}

	case naluType == 24:
		d.resetFU()
		return d.depacketizeSTAPA(payload)

	case naluType == 28:
		return d.depacketizeFUA(seq, payload)

	default:
		return nil
	}
}

func (d *H264Depacketizer) depacketizeSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // skip STAP-A header byte

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H264Depacketizer) depacketizeFUA(seq uint16, payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	fnri := payload[0] & 0xe0 // F + NRI bits from FU indicator
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1f

	switch {
	case start:
		// Reconstruct NAL header: F+NRI from FU indicator + type from FU header
		d.fuaBuf = append([]byte{fnri | naluType}, payload[2:]...)
		d.inFU = true
	case !d.inFU:
		return nil
	case seq != d.lastSeq+1:
		d.resetFU()
		return nil
	default:
		d.fuaBuf = append(d.fuaBuf, payload[2:]...)
	}
	d.lastSeq = seq

	if end {
		nalu := d.fuaBuf
		d.resetFU()
		return [][]byte{nalu}
	}

	return nil
}

func (d *H264Depacketizer) resetFU() {
	d.fuaBuf = nil
	d.inFU = false
}

// writeAnnexB writes each non-empty NAL unit to w behind a start code.
func writeAnnexB(w io.Writer, nalus [][]byte) error {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if _, err := w.Write(annexBStartCode); err != nil {
			return err
		}
		if _, err := w.Write(nalu); err != nil {
			return err
		}
	}
	return nil
}
