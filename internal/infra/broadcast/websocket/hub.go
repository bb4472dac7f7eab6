package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// RoutePrefix is the path under which a Hub serves rooms.
const RoutePrefix = "/channel/"

// Hub is an http.Handler that relays every non-empty frame a peer sends to
// every other peer connected to the same room.
type Hub struct {
	settings *Settings
	upgrader websocket.Upgrader

	mu     sync.Mutex
	nextID uint64
	rooms  map[string]map[uint64]*peer
}

type peer struct {
	id   uint64
	room string
	send chan []byte
}

func NewHub(settings *Settings) *Hub {
	settings = settings.withDefaults()
	return &Hub{
		settings: settings,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: settings.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[uint64]*peer),
	}
}

// Peers reports how many connections room currently has.
func (h *Hub) Peers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room, ok := strings.CutPrefix(r.URL.Path, RoutePrefix)
	if !ok || room == "" || strings.Contains(room, "/") {
		http.NotFound(w, r)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[h]upgrade %s error = %s\n", room, err)
		return
	}
	p := h.join(room)
	defer h.leave(p)
	h.serve(r.Context(), ws, p)
}

func (h *Hub) join(room string) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	p := &peer{id: h.nextID, room: room, send: make(chan []byte, h.settings.SendBufferSize)}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uint64]*peer)
		h.rooms[room] = members
	}
	members[p.id] = p
	glog.V(1).Infof("[h]join %s/%d\n", room, p.id)
	return p
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[p.room]
	delete(members, p.id)
	if len(members) == 0 {
		delete(h.rooms, p.room)
	}
	glog.V(1).Infof("[h]leave %s/%d\n", p.room, p.id)
}

// relay queues message for every peer of from's room except from. A peer
// whose buffer is full misses the message.
func (h *Hub) relay(from *peer, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, p := range h.rooms[from.room] {
		if id == from.id {
			continue
		}
		select {
		case p.send <- message:
		default:
			glog.Infof("[h]drop %s/%d\n", p.room, id)
		}
	}
}

func (h *Hub) serve(ctx context.Context, ws *websocket.Conn, p *peer) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()
		for {
			select {
			case <-handleCtx.Done():
				return
			case message := <-p.send:
				ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
					glog.Infof("[hs]%s/%d-> error = %s\n", p.room, p.id, err)
					return
				}
			case <-time.After(h.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer handleCancel()
		for {
			ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				glog.V(1).Infof("[hr]%s/%d<- error = %s\n", p.room, p.id, err)
				return
			}
			switch messageType {
			case websocket.BinaryMessage:
				if len(message) == 0 {
					continue
				}
				h.relay(p, message)
			default:
				glog.V(2).Infof("[hr]other=%d %s/%d<-\n", messageType, p.room, p.id)
			}
		}
	}()

	<-handleCtx.Done()
}
