package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// jsonCodec lets gRPC carry Event as JSON instead of protobuf, the
// same trick the teacher's internal/api/grpc_service.go uses to avoid
// a protoc code generation step for a single bidirectional stream.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// EventsServer is the bidirectional stream control-plane clients
// (the desktop shell) connect to, and the minimal surface a gRPC
// service implementation must provide.
type EventsServer interface {
	Stream(Events_StreamServer) error
}

// UnimplementedEventsServer can be embedded to satisfy EventsServer
// without implementing Stream.
type UnimplementedEventsServer struct{}

func (UnimplementedEventsServer) Stream(Events_StreamServer) error {
	return status.Errorf(codes.Unimplemented, "method Stream not implemented")
}

// Events_StreamServer is the per-connection stream handle.
type Events_StreamServer interface {
	Send(*Event) error
	Recv() (*Event, error)
	grpc.ServerStream
}

type eventsStreamServer struct {
	grpc.ServerStream
}

func (x *eventsStreamServer) Send(e *Event) error {
	return x.ServerStream.SendMsg(e)
}

func (x *eventsStreamServer) Recv() (*Event, error) {
	e := new(Event)
	if err := x.ServerStream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func handleStream(srv interface{}, stream grpc.ServerStream) error {
	return srv.(EventsServer).Stream(&eventsStreamServer{stream})
}

var eventsServiceDesc = grpc.ServiceDesc{
	ServiceName: "sessioncore.Events",
	HandlerType: (*EventsServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       handleStream,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "eventbus/events.proto",
}

// RegisterEventsServer wires srv into a grpc.Server.
func RegisterEventsServer(s *grpc.Server, srv EventsServer) {
	s.RegisterService(&eventsServiceDesc, srv)
}

// streamSubscriber adapts a Events_StreamServer into a bus subscriber.
type streamSubscriber struct {
	stream Events_StreamServer
}

func (s *streamSubscriber) Send(e Event) error {
	return s.stream.Send(&e)
}

// Server hosts the bus over a gRPC stream, accepting connections on a
// unix socket (or, on Windows, a named pipe), mirroring the teacher's
// startGRPCServer/listenGRPC split.
type Server struct {
	UnimplementedEventsServer
	bus  *Bus
	addr string
	grpc *grpc.Server
}

// NewServer builds a gRPC-backed event server. addr follows the
// teacher's scheme prefixes: "unix:///path/to.sock" or, on Windows,
// "npipe:\\.\pipe\name".
func NewServer(bus *Bus, addr string) *Server {
	return &Server{bus: bus, addr: addr}
}

// DefaultAddr picks a platform-appropriate default control socket.
func DefaultAddr() string {
	if runtime.GOOS == "windows" {
		return `npipe:\\.\pipe\sessioncore-events`
	}
	return "unix:///tmp/sessioncore-events.sock"
}

// Stream handles one client connection: it subscribes the stream to
// the bus for the connection's lifetime, and reads (and discards)
// incoming messages only to detect the client disconnecting.
func (s *Server) Stream(stream Events_StreamServer) error {
	sub := &streamSubscriber{stream: stream}
	unsubscribe := s.bus.Subscribe(sub)
	defer unsubscribe()

	for {
		if _, err := stream.Recv(); err != nil {
			return nil
		}
	}
}

// Start begins listening and serving in the background. It returns
// once the listener is bound; serve errors are logged, not returned,
// matching the teacher's startGRPCServer.
func (s *Server) Start() error {
	listener, err := listenGRPC(s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.grpc = grpc.NewServer(
		grpc.Creds(insecure.NewCredentials()),
		grpc.ForceServerCodec(jsonCodec{}),
	)
	RegisterEventsServer(s.grpc, s)

	go func() {
		log.Printf("eventbus: gRPC listening on %s", s.addr)
		if err := s.grpc.Serve(listener); err != nil {
			log.Printf("eventbus: gRPC server stopped: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the gRPC server down.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

func listenGRPC(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		socketPath := strings.TrimPrefix(addr, "unix:")
		socketPath = strings.TrimPrefix(socketPath, "//")
		if err := removeIfExists(socketPath); err != nil {
			return nil, err
		}
		return net.Listen("unix", socketPath)
	case strings.HasPrefix(addr, "npipe:"):
		pipePath := strings.TrimPrefix(addr, "npipe:")
		return listenPipe(pipePath)
	default:
		return net.Listen("tcp", addr)
	}
}

func removeIfExists(path string) error {
	if path == "" {
		return errors.New("empty socket path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
