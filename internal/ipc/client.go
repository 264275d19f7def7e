package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"mia/internal/message"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Deliver sends a one-way directive. The request is written before Deliver
// returns; the reply is never awaited.
func (c *Client) Deliver(_ context.Context, msg message.WorkerMessage) error {
	env, err := message.Encode(msg)
	if err != nil {
		return err
	}
	call := c.client.Go(ServiceName+".Deliver", DeliverRequest{Envelope: env}, &DeliverResponse{}, make(chan *rpc.Call, 1))
	select {
	case done := <-call.Done:
		// Only a send failure completes the call this early.
		if done.Error != nil {
			return fmt.Errorf("deliver %s: %w", msg.Type(), done.Error)
		}
	default:
	}
	return nil
}

// DeliverAndWait sends a directive and waits for the admission result.
func (c *Client) DeliverAndWait(ctx context.Context, msg message.WorkerMessage) (*DeliverResponse, error) {
	env, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}
	var resp DeliverResponse
	if err := c.call(ctx, "Deliver", DeliverRequest{Envelope: env}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestMicrophone asks the worker to check microphone access.
func (c *Client) TestMicrophone(ctx context.Context) (message.TestMicrophoneResult, error) {
	var resp TestMicrophoneResponse
	if err := c.call(ctx, "TestMicrophone", TestMicrophoneRequest{}, &resp); err != nil {
		return message.TestMicrophoneResult{}, err
	}
	return message.TestMicrophoneResult{HasAccess: resp.HasAccess}, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call(ctx, "Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case done := <-call.Done:
		return done.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}
