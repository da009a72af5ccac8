// Package grpcmodel reaches the image-text embedding and perceptual distance
// models running in an inference sidecar over gRPC. Messages are
// google.protobuf.Struct values so no generated stubs are needed on this side.
package grpcmodel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vk/reportbundle/internal/scoring"
)

// Service is the fully qualified name of the sidecar service.
const Service = "scoring.v1.ScoringService"

// Method paths on Service.
const (
	MethodEmbedImage = "/" + Service + "/EmbedImage"
	MethodEmbedText  = "/" + Service + "/EmbedText"
	MethodDistance   = "/" + Service + "/Distance"
)

// #region client-struct
// Client talks to the scoring sidecar.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the sidecar at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn builds a Client on an existing connection. Close is a
// no-op for such clients.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #region embed
// EmbedImage sends img as PNG and returns its embedding.
func (c *Client) EmbedImage(ctx context.Context, img image.Image) ([]float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"image_png": base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.call(ctx, MethodEmbedImage, req)
	if err != nil {
		return nil, fmt.Errorf("embed image rpc: %w", err)
	}
	return embedding(resp)
}

// EmbedText returns the embedding of text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.call(ctx, MethodEmbedText, req)
	if err != nil {
		return nil, fmt.Errorf("embed text rpc: %w", err)
	}
	return embedding(resp)
}

// #endregion embed

// #region distance
// Distance returns the perceptual distance between two tensors.
func (c *Client) Distance(ctx context.Context, a, b scoring.Tensor) (float64, error) {
	if a.Len() != len(a.Data) || b.Len() != len(b.Data) {
		return 0, fmt.Errorf("tensor data does not match shape")
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"a": structpb.NewStructValue(encodeTensor(a)),
		"b": structpb.NewStructValue(encodeTensor(b)),
	}}
	resp, err := c.call(ctx, MethodDistance, req)
	if err != nil {
		return 0, fmt.Errorf("distance rpc: %w", err)
	}
	v, ok := resp.GetFields()["distance"]
	if !ok {
		return 0, fmt.Errorf("distance rpc: response has no distance")
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("distance rpc: distance is not a number")
	}
	return v.GetNumberValue(), nil
}

// #endregion distance

func (c *Client) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func embedding(resp *structpb.Struct) ([]float64, error) {
	list := resp.GetFields()["embedding"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}
	out := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		out[i] = v.GetNumberValue()
	}
	return out, nil
}

// encodeTensor packs t as {"shape": [...], "data": base64(little-endian float32)}.
func encodeTensor(t scoring.Tensor) *structpb.Struct {
	shape := make([]*structpb.Value, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = structpb.NewNumberValue(float64(d))
	}
	raw := make([]byte, 4*len(t.Data))
	for i, f := range t.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"shape": structpb.NewListValue(&structpb.ListValue{Values: shape}),
		"data":  structpb.NewStringValue(base64.StdEncoding.EncodeToString(raw)),
	}}
}

// DecodeTensor reverses the wire encoding used for Distance requests.
func DecodeTensor(s *structpb.Struct) (scoring.Tensor, error) {
	var t scoring.Tensor
	for _, v := range s.GetFields()["shape"].GetListValue().GetValues() {
		t.Shape = append(t.Shape, int(v.GetNumberValue()))
	}
	raw, err := base64.StdEncoding.DecodeString(s.GetFields()["data"].GetStringValue())
	if err != nil {
		return scoring.Tensor{}, fmt.Errorf("decode tensor data: %w", err)
	}
	if len(raw)%4 != 0 {
		return scoring.Tensor{}, fmt.Errorf("tensor data is not float32 aligned")
	}
	t.Data = make([]float32, len(raw)/4)
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	if t.Len() != len(t.Data) {
		return scoring.Tensor{}, fmt.Errorf("tensor data does not match shape %v", t.Shape)
	}
	return t, nil
}

var (
	_ scoring.ImageTextEmbedder = (*Client)(nil)
	_ scoring.DistanceModel     = (*Client)(nil)
)
