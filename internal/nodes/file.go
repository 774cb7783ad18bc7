package nodes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	fileConfig struct {
		Filename     string `json:"filename"`
		FilenameType string `json:"filenameType"`
	}

	// file writes, appends or deletes an object in the file bucket and
	// passes the message on once the operation is done
	file struct {
		fileConfig
		AppendNewline bool `json:"appendNewline"`
		OverwriteFile text `json:"overwriteFile"`

		files *blob.Bucket
		queue *ioQueue
	}

	// fileIn reads an object from the file bucket into the payload
	fileIn struct {
		fileConfig
		Format string `json:"format"`

		files *blob.Bucket
		queue *ioQueue
	}
)

const (
	keyFilename = "filename"

	filenameFromMsg = "msg"

	overwriteTrue   = "true"
	overwriteDelete = "delete"

	formatText  = "utf8"
	formatLines = "lines"
)

var (
	ErrNoFilename      = errors.New("no filename specified")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrFileNotFound    = errors.New("file not found")
)

func (o Options) newFile(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	if o.Files == nil {
		return nil, ErrFilesNotConfigured
	}
	h := &file{files: o.Files}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	h.queue = newIOQueue()
	return h, nil
}

func (o Options) newFileIn(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	if o.Files == nil {
		return nil, ErrFilesNotConfigured
	}
	h := &fileIn{files: o.Files, Format: formatText}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	h.queue = newIOQueue()
	return h, nil
}

// key picks the object name from the config or from msg.filename and
// keeps it inside the bucket
func (c *fileConfig) key(msg api.Msg) (string, error) {
	name := c.Filename
	if c.FilenameType == filenameFromMsg || name == "" {
		name = toText(msg[keyFilename])
	}
	if name == "" {
		return "", ErrNoFilename
	}
	key := strings.TrimPrefix(path.Clean("/"+name), "/")
	if key == "" || key != strings.TrimPrefix(path.Clean(name), "/") {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, name)
	}
	return key, nil
}

func (h *file) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	key, err := h.key(msg)
	if err != nil {
		done(err)
		return
	}
	data, err := payloadBytes(msg.Payload())
	if err != nil {
		done(err)
		return
	}
	if h.AppendNewline {
		data = append(data, '\n')
	}

	mode := h.OverwriteFile
	h.queue.submit(n, done, func() ([]api.Msg, error) {
		ctx := context.Background()
		var err error
		switch mode {
		case overwriteDelete:
			err = ignoreNotFound(h.files.Delete(ctx, key))
		case overwriteTrue:
			err = h.files.WriteAll(ctx, key, data, nil)
		default:
			err = h.appendTo(ctx, key, data)
		}
		if err != nil {
			return nil, err
		}
		return []api.Msg{msg}, nil
	})
}

// appendTo rewrites the object with data added; buckets have no append
func (h *file) appendTo(ctx context.Context, key string, data []byte) error {
	existing, err := h.files.ReadAll(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return h.files.WriteAll(ctx, key, append(existing, data...), nil)
}

func (h *file) Close(*engine.Node) error {
	h.queue.drain()
	return nil
}

func (h *fileIn) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	key, err := h.key(msg)
	if err != nil {
		done(err)
		return
	}

	format := h.Format
	h.queue.submit(n, done, func() ([]api.Msg, error) {
		data, err := h.files.ReadAll(context.Background(), key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
			}
			return nil, err
		}

		msg[keyFilename] = key
		switch format {
		case formatText:
			msg[api.KeyPayload] = string(data)
		case formatLines:
			return lineMessages(msg, data), nil
		default:
			msg[api.KeyPayload] = data
		}
		return []api.Msg{msg}, nil
	})
}

func lineMessages(msg api.Msg, data []byte) []api.Msg {
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	id := api.NewID()
	res := make([]api.Msg, len(lines))
	for i, line := range lines {
		m := msg.Clone()
		m.NewID()
		m[api.KeyPayload] = line
		m.SetParts(api.Parts{
			ID: id, Type: partsString, Ch: "\n", Index: i, Count: len(lines),
		})
		res[i] = m
	}
	return res
}

func (h *fileIn) Close(*engine.Node) error {
	h.queue.drain()
	return nil
}

func payloadBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(t), nil
	case []byte:
		return bytes.Clone(t), nil
	default:
		return api.EncodeValue(v)
	}
}

func ignoreNotFound(err error) error {
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}
