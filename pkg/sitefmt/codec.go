package sitefmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/chazu/workcell/pkg/workcell"
)

// File extensions understood by ReadFile and WriteFile.
const (
	ExtJSON    = ".json"
	ExtBinary  = ".wcb"
	ExtArchive = ".wcz"
)

// maxArchiveSize caps the decompressed size of an archive.
const maxArchiveSize = 256 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Units and up axes travel as their text form, as in JSON.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("sitefmt: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("sitefmt: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic("sitefmt: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxArchiveSize))
	if err != nil {
		panic("sitefmt: zstd decoder initialization failed: " + err.Error())
	}
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// Encode serializes w as an indented JSON site document. Identical
// workcell states always produce identical bytes.
func Encode(w *workcell.Workcell) ([]byte, error) {
	out, err := json.MarshalIndent(NewDocument(w), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode site document: %w", err)
	}
	return append(out, '\n'), nil
}

// Decode parses a JSON site document. Comments and trailing commas are
// accepted so that documents can be edited by hand.
func Decode(data []byte) (*workcell.Workcell, error) {
	data = jsonc.ToJSON(data)
	if err := checkDuplicateKeys(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, docError(err)
	}
	return doc.Workcell()
}

// sectionKinds maps the id-keyed sections of a document to their entity kind.
var sectionKinds = map[string]workcell.EntityKind{
	"anchors":         workcell.KindAnchor,
	"links":           workcell.KindLink,
	"joints":          workcell.KindJoint,
	"model_instances": workcell.KindModel,
}

type jsonFrame struct {
	object    bool
	expectKey bool
	lastKey   string
	keys      map[string]bool
	section   string
}

// checkDuplicateKeys rejects objects that repeat a key. encoding/json keeps
// the last value of a repeated key, which would silently drop an entity.
// Syntax errors are left for Unmarshal to report.
func checkDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	var stack []*jsonFrame
	top := func() *jsonFrame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	valueDone := func() {
		if f := top(); f != nil && f.object {
			f.expectKey = true
		}
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				f := &jsonFrame{object: t == '{', expectKey: true}
				if f.object {
					f.keys = map[string]bool{}
				}
				if len(stack) == 1 {
					f.section = stack[0].lastKey
				}
				stack = append(stack, f)
			default:
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				valueDone()
			}
		case string:
			if f := top(); f != nil && f.object && f.expectKey {
				if f.keys[t] {
					return duplicateKey(f.section, t)
				}
				f.keys[t] = true
				f.lastKey = t
				f.expectKey = false
				continue
			}
			valueDone()
		default:
			valueDone()
		}
	}
}

func duplicateKey(section, key string) error {
	kind, ok := sectionKinds[section]
	if !ok {
		return docError(fmt.Errorf("duplicate key %q", key))
	}
	ref := workcell.Ref{Kind: kind}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		ref.ID = id
	}
	return workcell.Errorf(workcell.ErrDuplicateIdentifier, ref, "site document: id %s appears twice in %s", key, section)
}

func docError(err error) error {
	e := workcell.Errorf(workcell.ErrMalformedDocument, workcell.Ref{}, "site document: %v", err)
	e.Cause = err
	return e
}

// ---------------------------------------------------------------------------
// Binary
// ---------------------------------------------------------------------------

// EncodeBinary serializes w as deterministic CBOR.
func EncodeBinary(w *workcell.Workcell) ([]byte, error) {
	out, err := encMode.Marshal(NewDocument(w))
	if err != nil {
		return nil, fmt.Errorf("encode site document: %w", err)
	}
	return out, nil
}

// DecodeBinary parses a CBOR site document.
func DecodeBinary(data []byte) (*workcell.Workcell, error) {
	var doc Document
	if err := decMode.Unmarshal(data, &doc); err != nil {
		var dup *cbor.DupMapKeyError
		if errors.As(err, &dup) {
			return nil, workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{},
				"site document: repeated key %v", dup.Key)
		}
		return nil, docError(err)
	}
	return doc.Workcell()
}

// EncodeArchive serializes w as zstd-compressed CBOR.
func EncodeArchive(w *workcell.Workcell) ([]byte, error) {
	raw, err := EncodeBinary(w)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// DecodeArchive parses a compressed site document.
func DecodeArchive(data []byte) (*workcell.Workcell, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, docError(fmt.Errorf("zstd decompress: %w", err))
	}
	return DecodeBinary(raw)
}

// ---------------------------------------------------------------------------
// Digest
// ---------------------------------------------------------------------------

// Digest is the BLAKE3 hash of a workcell's JSON encoding. Equal digests
// mean equal saved documents.
type Digest [32]byte

func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// Sum returns the digest of w.
func Sum(w *workcell.Workcell) (Digest, error) {
	doc, err := Encode(w)
	if err != nil {
		return Digest{}, err
	}
	return blake3.Sum256(doc), nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

type codec struct {
	encode func(*workcell.Workcell) ([]byte, error)
	decode func([]byte) (*workcell.Workcell, error)
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtJSON, ".jsonc":
		return codec{Encode, Decode}, nil
	case ExtBinary:
		return codec{EncodeBinary, DecodeBinary}, nil
	case ExtArchive:
		return codec{EncodeArchive, DecodeArchive}, nil
	}
	return codec{}, fmt.Errorf("%s: unknown site document extension", path)
}

// ReadFile loads a site document, choosing the codec by extension.
func ReadFile(path string) (*workcell.Workcell, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// WriteFile saves w, choosing the codec by extension. The file is replaced
// atomically.
func WriteFile(path string, w *workcell.Workcell) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	data, err := c.encode(w)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := bytes.NewReader(data).WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
