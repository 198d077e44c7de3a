package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"hive/pkg/protocol"
)

// Send dials the control socket, sends one directive, and returns the
// ACK. A failed dial usually means no serve process is running.
func Send(ctx context.Context, path string, d protocol.Directive) (protocol.Ack, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("connect to control socket (is hive serve running?): %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(d)
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("marshal directive: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return protocol.Ack{}, fmt.Errorf("send directive: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return protocol.Ack{}, fmt.Errorf("read ack: %w", err)
		}
		return protocol.Ack{}, fmt.Errorf("no ack received")
	}

	var ack protocol.Ack
	if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
		return protocol.Ack{}, fmt.Errorf("unmarshal ack: %w", err)
	}
	if !ack.OK {
		return ack, fmt.Errorf("directive failed: %s", ack.Detail)
	}
	return ack, nil
}
