package session

import (
	"sync"

	"github.com/code-tutor/tutor/internal/protocol"
	"github.com/code-tutor/tutor/internal/transport"
)

// link is one open connection with its read and write pumps.
type link struct {
	conn      transport.Conn
	gen       uint64
	send      chan protocol.Message
	closeOnce sync.Once
}

func newLink(s *Session, conn transport.Conn, gen uint64, buffer int) *link {
	l := &link{
		conn: conn,
		gen:  gen,
		send: make(chan protocol.Message, buffer),
	}
	go l.readPump(s)
	go l.writePump(s)
	return l
}

// enqueue is called only from the loop goroutine, before close.
func (l *link) enqueue(msg protocol.Message) error {
	select {
	case l.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.send)
		l.conn.Close()
	})
}

func (l *link) readPump(s *Session) {
	for {
		msg, err := l.conn.Receive()
		if err != nil {
			ev := eventFromReadError(l.gen, err)
			s.post(func() { s.onEvent(ev) })
			return
		}
		ev := eventFromMessage(l.gen, msg)
		if !s.post(func() { s.onEvent(ev) }) {
			return
		}
	}
}

func (l *link) writePump(s *Session) {
	for msg := range l.send {
		if err := l.conn.Send(msg); err != nil {
			cmd := msg.Type
			s.post(func() { s.onSendFailed(l.gen, cmd, err) })
			return
		}
	}
}
