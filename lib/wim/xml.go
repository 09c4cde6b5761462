// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

// The XML info blob is opaque to the engine: it is stored and
// reproduced byte-for-byte. What the engine guarantees is the
// encoding envelope (UTF-16LE with a byte-order mark) and that a
// WIM written without caller-provided XML still carries a minimal,
// well-formed document.

// encodeXML converts an XML document string into the on-disk
// UTF-16LE form with BOM.
func encodeXML(doc string) []byte {
	units := utf16.Encode([]rune(doc))
	out := make([]byte, (len(units)+1)*2)
	binary.LittleEndian.PutUint16(out, 0xFEFF)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[(i+1)*2:], u)
	}
	return out
}

// DecodeXML renders an XML info blob as a string, validating the
// BOM. Exposed for CLI display; the engine never interprets the
// content.
func DecodeXML(data []byte) (string, error) {
	if len(data) < 2 || len(data)%2 != 0 {
		return "", fmt.Errorf("XML data has invalid length %d", len(data))
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	if units[0] != 0xFEFF {
		return "", fmt.Errorf("XML data has no little-endian byte-order mark")
	}
	return string(utf16.Decode(units[1:])), nil
}

// buildDefaultXML synthesizes the minimal info document for WIMs
// written without caller-provided XML.
func (w *WIM) buildDefaultXML(totalBytes uint64) []byte {
	var doc bytes.Buffer
	fmt.Fprintf(&doc, "<WIM><TOTALBYTES>%d</TOTALBYTES>", totalBytes)
	for i := range w.images {
		fmt.Fprintf(&doc, "<IMAGE INDEX=\"%d\"/>", i+1)
	}
	doc.WriteString("</WIM>")
	return encodeXML(doc.String())
}

// bytesReader adapts a byte slice for the streaming write helpers.
func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
