package protocol

import (
	"errors"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// ErrUnknownTaskKind is returned for a task kind this version cannot decode.
var ErrUnknownTaskKind = errors.New("protocol: unknown task kind")

// TaskExecute carries one operation-log entry.
type TaskExecute struct {
	Task *paint.Task
}

func (*TaskExecute) Code() Code { return CodeTaskExecute }

func (m *TaskExecute) EncodeTo(e *Encoder) { EncodeTaskTo(e, m.Task) }

// DecodeTaskExecute decodes a TaskExecute body.
func DecodeTaskExecute(body []byte) (*TaskExecute, error) {
	d := NewDecoder(body)
	t, err := DecodeTaskFrom(d)
	if err != nil {
		return nil, malformed(err)
	}
	return done(&TaskExecute{Task: t}, d)
}

// EncodeTaskTo encodes a task.
//
//	[Kind: 1 byte][variant fields]
func EncodeTaskTo(e *Encoder, t *paint.Task) {
	e.WriteByte(byte(t.Kind))
	switch t.Kind {
	case paint.TaskCreate:
		EncodeItemTo(e, t.Item)
	case paint.TaskMove:
		EncodeItemKeyTo(e, t.Key)
		e.WritePoint(t.FromX, t.FromY)
		e.WritePoint(t.ToX, t.ToY)
	case paint.TaskUpdate:
		EncodeItemKeyTo(e, t.Key)
		e.WriteLenBytes(t.Prev)
		e.WriteLenBytes(t.Next)
	case paint.TaskRemove:
		EncodeItemKeyTo(e, t.Key)
	case paint.TaskClear:
		e.WriteCount(len(t.Keys))
		for _, k := range t.Keys {
			EncodeItemKeyTo(e, k)
		}
	}
}

// DecodeTaskFrom decodes a task.
func DecodeTaskFrom(d *Decoder) (*paint.Task, error) {
	kind, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	t := &paint.Task{Kind: paint.TaskKind(kind)}

	switch t.Kind {
	case paint.TaskCreate:
		if t.Item, err = DecodeItemFrom(d); err != nil {
			return nil, err
		}
		t.Key = t.Item.Key

	case paint.TaskMove:
		if t.Key, err = DecodeItemKeyFrom(d); err != nil {
			return nil, err
		}
		if t.FromX, t.FromY, err = d.ReadPoint(); err != nil {
			return nil, err
		}
		if t.ToX, t.ToY, err = d.ReadPoint(); err != nil {
			return nil, err
		}

	case paint.TaskUpdate:
		if t.Key, err = DecodeItemKeyFrom(d); err != nil {
			return nil, err
		}
		if t.Prev, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}
		if t.Next, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}

	case paint.TaskRemove:
		if t.Key, err = DecodeItemKeyFrom(d); err != nil {
			return nil, err
		}

	case paint.TaskClear:
		n, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		t.Keys = make([]paint.ItemKey, n)
		for i := range t.Keys {
			if t.Keys[i], err = DecodeItemKeyFrom(d); err != nil {
				return nil, err
			}
		}

	default:
		return nil, ErrUnknownTaskKind
	}
	return t, nil
}
