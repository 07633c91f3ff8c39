// Package api exposes the daemon's backup and link-and-sync operations over
// gRPC. Messages are google.protobuf.Struct so no generated code is needed;
// the field names each method reads and writes are listed on LinkServer.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "wpplink.v1.LinkService"

// LinkServer is the server side of wpplink.v1.LinkService.
type LinkServer interface {
	// ExportBackup {path, key?} -> {path, outcome, frames, errors}
	ExportBackup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ImportBackup {path, key?} -> {outcome, recipients, chats, chatItems, partial, failed, skipped, errors}
	ImportBackup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// StartPrimaryLink {token} -> {key, sessionId}
	StartPrimaryLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// StartSecondaryRestore {key} -> {sessionId}
	StartSecondaryRestore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetLinkStatus {} -> {session, primary?, secondary?, lastExport, lastImport, history}
	GetLinkStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(LinkServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LinkServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LinkServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LinkServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ExportBackup", LinkServer.ExportBackup),
		unary("ImportBackup", LinkServer.ImportBackup),
		unary("StartPrimaryLink", LinkServer.StartPrimaryLink),
		unary("StartSecondaryRestore", LinkServer.StartSecondaryRestore),
		unary("GetLinkStatus", LinkServer.GetLinkStatus),
	},
	Metadata: "wpplink/v1/link.proto",
}

func RegisterLinkServer(s grpc.ServiceRegistrar, srv LinkServer) {
	s.RegisterService(&ServiceDesc, srv)
}
