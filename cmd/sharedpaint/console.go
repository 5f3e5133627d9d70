package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

// painter is the part of paintmgr.Manager the console drives.
type painter interface {
	SelfID() string
	SubmitLocalTask(t *paint.Task) error
	SendChatMessage(message string) error
	SendBroadcastText(message string) error
	ChangeNickName(nick string) error
	Undo() error
	Redo() error
	SeekTo(position int) error
	ClearScreen() error
	SetGridLine(size int) error
}

// console turns input lines into painter calls. Lines not starting with
// a slash are chat messages.
type console struct {
	p      painter
	out    io.Writer
	nextID int64
	users  func() []*paint.User
	find   func(key paint.ItemKey) (*paint.Item, bool)
}

const consoleHelp = `commands:
  /line X1 Y1 X2 Y2   draw a line
  /move ID X Y        move one of your items
  /remove ID          remove one of your items
  /undo  /redo        step through the history
  /seek N             play back to position N
  /clear              clear the screen
  /grid N             set the grid size, 0 hides it
  /nick NAME          change your nick name
  /shout TEXT         broadcast text on the LAN
  /users              list painters
  /quit               leave`

var errQuit = errors.New("quit")

// run reads lines until r is exhausted, ctx is done or /quit.
func (c *console) run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.exec(sc.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func (c *console) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.p.SendChatMessage(line)
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/help":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "/quit":
		return errQuit
	case "/undo":
		return c.p.Undo()
	case "/redo":
		return c.p.Redo()
	case "/clear":
		return c.p.ClearScreen()
	case "/nick":
		if len(args) == 0 {
			return fmt.Errorf("usage: /nick NAME")
		}
		return c.p.ChangeNickName(strings.Join(args, " "))
	case "/shout":
		if len(args) == 0 {
			return fmt.Errorf("usage: /shout TEXT")
		}
		return c.p.SendBroadcastText(strings.Join(args, " "))
	case "/seek", "/grid":
		n, err := ints(args, 1)
		if err != nil {
			return fmt.Errorf("usage: %s N", cmd)
		}
		if cmd == "/seek" {
			return c.p.SeekTo(n[0])
		}
		return c.p.SetGridLine(n[0])
	case "/line":
		n, err := ints(args, 4)
		if err != nil {
			return fmt.Errorf("usage: /line X1 Y1 X2 Y2")
		}
		return c.line(n[0], n[1], n[2], n[3])
	case "/move":
		n, err := ints(args, 3)
		if err != nil {
			return fmt.Errorf("usage: /move ID X Y")
		}
		key := paint.ItemKey{Owner: c.p.SelfID(), ID: int64(n[0])}
		it, ok := c.lookup(key)
		if !ok {
			return fmt.Errorf("no item %s", key)
		}
		return c.p.SubmitLocalTask(paint.NewMoveTask(key, it.X, it.Y, float64(n[1]), float64(n[2])))
	case "/remove":
		n, err := ints(args, 1)
		if err != nil {
			return fmt.Errorf("usage: /remove ID")
		}
		key := paint.ItemKey{Owner: c.p.SelfID(), ID: int64(n[0])}
		return c.p.SubmitLocalTask(paint.NewRemoveTask(key))
	case "/users":
		if c.users == nil {
			return nil
		}
		for _, u := range c.users() {
			mark := " "
			if u.Self {
				mark = "*"
			}
			fmt.Fprintf(c.out, "%s %s (%s)\n", mark, u.NickName, u.ID)
		}
		return nil
	}
	return fmt.Errorf("unknown command %s, try /help", cmd)
}

func (c *console) line(x1, y1, x2, y2 int) error {
	c.nextID++
	item := &paint.Item{
		Key:  paint.ItemKey{Owner: c.p.SelfID(), ID: c.nextID},
		Type: paint.ItemLine,
		X:    float64(x1),
		Y:    float64(y1),
		Data: []byte(fmt.Sprintf("%d,%d", x2-x1, y2-y1)),
	}
	if err := c.p.SubmitLocalTask(paint.NewCreateTask(item)); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "line %d\n", c.nextID)
	return nil
}

func (c *console) lookup(key paint.ItemKey) (*paint.Item, bool) {
	if c.find == nil {
		return nil, false
	}
	return c.find(key)
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
