package api

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls wpplink.v1.LinkService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to a daemon listening on a Unix socket.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	return grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func keyFields(path string, key []byte) map[string]any {
	in := map[string]any{"path": path}
	if key != nil {
		in["key"] = base64.StdEncoding.EncodeToString(key)
	}
	return in
}

// ExportBackup asks the daemon to write a backup to path, sealed with key
// when key is non-nil. An empty path uses the session's backup directory.
func (c *Client) ExportBackup(ctx context.Context, path string, key []byte) (map[string]any, error) {
	out, err := c.invoke(ctx, "ExportBackup", keyFields(path, key))
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) ImportBackup(ctx context.Context, path string, key []byte) (map[string]any, error) {
	out, err := c.invoke(ctx, "ImportBackup", keyFields(path, key))
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// StartPrimaryLink starts a primary session for token and returns the
// ephemeral backup key to hand to the new device along with the session id.
func (c *Client) StartPrimaryLink(ctx context.Context, token string) ([]byte, string, error) {
	out, err := c.invoke(ctx, "StartPrimaryLink", map[string]any{"token": token})
	if err != nil {
		return nil, "", err
	}
	key, err := base64.StdEncoding.DecodeString(out.GetFields()["key"].GetStringValue())
	if err != nil {
		return nil, "", err
	}
	return key, out.GetFields()["sessionId"].GetStringValue(), nil
}

// StartSecondaryRestore starts a secondary session and returns its id.
func (c *Client) StartSecondaryRestore(ctx context.Context, key []byte) (string, error) {
	out, err := c.invoke(ctx, "StartSecondaryRestore", map[string]any{
		"key": base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()["sessionId"].GetStringValue(), nil
}

func (c *Client) GetLinkStatus(ctx context.Context) (map[string]any, error) {
	out, err := c.invoke(ctx, "GetLinkStatus", map[string]any{})
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
