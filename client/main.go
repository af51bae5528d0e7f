package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/sudokuarena/broadcast"
	"github.com/wfunc/sudokuarena/network"
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func printSnapshot(data []byte) {
	var snap broadcast.RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("bad snapshot: %v", err)
		return
	}
	fmt.Printf("room %s  phase=%s  creator=%s\n", snap.ID, snap.Phase, snap.CreatorID)
	for id, m := range snap.CurrentMembers {
		fmt.Printf("  %-12s lives %d/%d  progress %d%%\n", id, m.RemainingLives, m.TotalLives, snap.Progress[id])
	}
	if n := len(snap.Chat); n > 0 {
		last := snap.Chat[n-1]
		fmt.Printf("  [%s] %s: %s\n", last.MessageType, last.SenderID, last.Message)
	}
}

func printBoard(data []byte, playerID string) {
	var snap broadcast.RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return
	}
	m, ok := snap.CurrentMembers[playerID]
	if !ok {
		return
	}
	for r, row := range m.GameBoard {
		if r%3 == 0 {
			fmt.Println("  +-------+-------+-------+")
		}
		line := "  "
		for c, v := range row {
			if c%3 == 0 {
				line += "| "
			}
			if v == 0 {
				line += ". "
			} else {
				line += strconv.Itoa(v) + " "
			}
		}
		fmt.Println(line + "|")
	}
	fmt.Println("  +-------+-------+-------+")
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server address")
	uid := flag.String("uid", "", "player id")
	name := flag.String("name", "", "display name")
	join := flag.String("room", "", "room code to join on connect")
	flag.Parse()
	if *uid == "" {
		log.Fatal("-uid is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	q := url.Values{"uid": {*uid}, "name": {*name}}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			switch p.MsgID {
			case network.MsgTypeHeartbeat:
			case network.MsgTypeRoomState:
				printSnapshot(p.Data)
				printBoard(p.Data, *uid)
			default:
				log.Printf("<- %s: %s", network.MsgName(p.MsgID), string(p.Data))
			}
		}
	}()

	if *join != "" {
		if err := send(c, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: *join}); err != nil {
			log.Fatalf("Write error: %v", err)
		}
	}

	log.Println("Commands: create <max>, join <code>, start, place <row> <col> <digit>, chat <text>, leave")

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text := <-lines:
			if err := runCommand(c, strings.Fields(text)); err != nil {
				log.Println(err)
			}
		}
	}
}

func runCommand(c *websocket.Conn, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "create":
		limit := 4
		if len(args) > 1 {
			limit, _ = strconv.Atoi(args[1])
		}
		return send(c, network.MsgTypeCreateRoom, network.CreateRoomRequest{Type: "private", MaxMember: limit})
	case "join":
		if len(args) < 2 {
			return fmt.Errorf("usage: join <code>")
		}
		return send(c, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomCode: strings.ToUpper(args[1])})
	case "start":
		return send(c, network.MsgTypeStartGame, nil)
	case "place":
		if len(args) < 4 {
			return fmt.Errorf("usage: place <row> <col> <digit>")
		}
		row, _ := strconv.Atoi(args[1])
		col, _ := strconv.Atoi(args[2])
		digit, _ := strconv.Atoi(args[3])
		return send(c, network.MsgTypePlaceDigit, network.PlaceDigitRequest{Row: row, Col: col, Digit: digit})
	case "chat":
		return send(c, network.MsgTypeChat, network.ChatRequest{Message: strings.Join(args[1:], " ")})
	case "leave":
		return send(c, network.MsgTypeLeaveRoom, nil)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
