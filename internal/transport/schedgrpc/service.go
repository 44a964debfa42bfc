package schedgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rik-org/riklet/internal/model"
)

// serviceName is the fully-qualified gRPC service name scheduling messages
// are dispatched under.
const serviceName = "rik.scheduling.Scheduler"

// Handler is implemented by a worker agent: it receives one scheduling
// decision and reports whether it accepted the instance.
type Handler func(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error)

// schedulerService is the interface shape RegisterService type-checks
// registered implementations against.
type schedulerService interface {
	Schedule(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error)
}

// handlerAdapter lifts a Handler func into the schedulerService interface.
type handlerAdapter struct{ fn Handler }

func (h handlerAdapter) Schedule(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error) {
	return h.fn(ctx, in)
}

// serviceDesc describes the one-method Scheduler service by hand — there
// is no generated *_grpc.pb.go in this repository.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*schedulerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Schedule",
			Handler:    scheduleHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "schedgrpc/service.go",
}

func scheduleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.InstanceScheduling)
	if err := dec(in); err != nil {
		return nil, err
	}
	svc := srv.(schedulerService)
	if interceptor == nil {
		return svc.Schedule(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/Schedule",
	}
	wrapped := func(ctx context.Context, req any) (any, error) {
		return svc.Schedule(ctx, *req.(*model.InstanceScheduling))
	}
	return interceptor(ctx, in, info, wrapped)
}

// NewServer registers handler against a fresh *grpc.Server configured to
// use the JSON codec for this service's payloads.
func NewServer(handler Handler) *grpc.Server {
	srv := grpc.NewServer()
	srv.RegisterService(&serviceDesc, handlerAdapter{fn: handler})
	return srv
}
