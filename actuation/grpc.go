package actuation

import (
	"context"
	"github.com/go-errors/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

type GrpcClientConfig struct {
	Target string
	// CertFile enables TLS with the given PEM certificate. Plaintext is used
	// when empty.
	CertFile    string
	DialOptions []grpc.DialOption
	Logger      Logger
}

// GrpcClient talks to the actuation service over gRPC.
type GrpcClient struct {
	target      string
	credentials credentials.TransportCredentials
	dialOptions []grpc.DialOption
	conn        *grpc.ClientConn
	log         Logger
}

var _ Client = (*GrpcClient)(nil)

func NewGrpcClient(config *GrpcClientConfig) (*GrpcClient, error) {
	if config.Target == "" {
		return nil, errors.New("no actuation service target given")
	}

	c := &GrpcClient{
		target:      config.Target,
		dialOptions: config.DialOptions,
	}

	if config.Logger != nil {
		c.log = config.Logger
	} else {
		c.log = noopLogger{}
	}

	if config.CertFile != "" {
		creds, err := credentials.NewClientTLSFromFile(config.CertFile, "")
		if err != nil {
			return nil, errors.Errorf("Could not load tls cert: %v", err)
		}
		c.credentials = creds
	} else {
		c.credentials = insecure.NewCredentials()
	}

	return c, nil
}

func (c *GrpcClient) Start() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(c.credentials),
		grpc.WithDefaultCallOptions(
			// Calls made while the channel reconnects wait for it until
			// their deadline instead of failing immediately.
			grpc.WaitForReady(true),
		),
	}, c.dialOptions...)

	conn, err := grpc.NewClient(c.target, opts...)
	if err != nil {
		return errors.Errorf("Could not connect to actuation service: %v", err)
	}

	c.conn = conn
	c.conn.Connect()

	c.log.Infof("Connecting to actuation service at %v", c.target)

	return nil
}

func (c *GrpcClient) Stop() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	if err != nil {
		return errors.Errorf("Could not close connection: %v", err)
	}

	c.conn = nil

	return nil
}

// Conn exposes the channel for connectivity reporting.
func (c *GrpcClient) Conn() *grpc.ClientConn {
	return c.conn
}

func (c *GrpcClient) Send(ctx context.Context, cmd AxleCommand) (*Ack, error) {
	if c.conn == nil {
		return nil, errors.New("actuation client not started")
	}

	req := (&SetStateRequest{
		AxlePosition: uint32(cmd.Axle),
		State:        uint32(cmd.State),
	}).toProto()
	res := dynamicpb.NewMessage(setStateResponseDesc)

	err := c.conn.Invoke(ctx, setStateMethod, req, res)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrNoReply
		}

		st := status.Convert(err)
		switch st.Code() {
		case codes.DeadlineExceeded, codes.Canceled:
			return nil, ErrNoReply
		}

		return nil, &RemoteError{
			Command: cmd,
			Code:    st.Code().String(),
			Message: st.Message(),
		}
	}

	return &Ack{Accepted: setStateResponseFromProto(res).Accepted}, nil
}
