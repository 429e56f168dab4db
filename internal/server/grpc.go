package server

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/records"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// FormsServiceName is the fully qualified gRPC service name.
const FormsServiceName = "formdigitizer.v1.Forms"

// OwnerMetadataKey carries the owner id when a request omits owner_id.
const OwnerMetadataKey = "x-owner-id"

// FormsServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct documents.
type FormsServer interface {
	ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GRPC adapts Service to FormsServer.
type GRPC struct {
	svc *Service
}

func NewGRPC(svc *Service) *GRPC { return &GRPC{svc: svc} }

// Register adds the Forms service to s.
func (g *GRPC) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&FormsServiceDesc, g)
}

func (g *GRPC) ListTemplates(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	tpls := g.svc.Templates()
	list := make([]any, 0, len(tpls))
	for _, t := range tpls {
		list = append(list, templateValue(t))
	}
	return respond(map[string]any{"templates": list})
}

// Extract expects {"template", "image"} where image is base64 or a data URL.
// With "save": true the result is stored for the caller.
func (g *GRPC) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	image, _, err := llm.DecodeDataURL(str(req, "image"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	res, err := g.svc.Extract(ctx, ExtractRequest{
		TemplateName: str(req, "template"),
		Image:        image,
		FileName:     str(req, "file_name"),
		Save:         req.GetFields()["save"].GetBoolValue(),
		OwnerID:      owner(ctx, req),
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out := map[string]any{
		"template": res.Template,
		"degraded": res.Degraded,
		"filled":   float64(res.Filled),
		"fields":   fieldsValue(res.Fields),
	}
	if res.Record != nil {
		out["record"] = recordValue(res.Record)
	}
	return respond(out)
}

func (g *GRPC) SaveRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := g.svc.records.Save(ctx, saveRequest(ctx, req))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return respond(recordValue(view))
}

func (g *GRPC) GetRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := g.svc.records.Get(ctx, owner(ctx, req), str(req, "id"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return respond(recordValue(view))
}

func (g *GRPC) ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	views, err := g.svc.records.List(ctx, owner(ctx, req))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	list := make([]any, 0, len(views))
	for _, v := range views {
		list = append(list, recordValue(v))
	}
	return respond(map[string]any{"records": list})
}

func (g *GRPC) UpdateRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := g.svc.records.Update(ctx, owner(ctx, req), str(req, "id"), structFields(req))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return respond(recordValue(view))
}

func (g *GRPC) DeleteRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.svc.records.Delete(ctx, owner(ctx, req), str(req, "id")); err != nil {
		return nil, common.ToStatus(err)
	}
	return respond(map[string]any{"deleted": true})
}

// ExportRecord returns {"format", "content_type", "file_name", "data"} with data base64 encoded.
func (g *GRPC) ExportRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := str(req, "id")
	format := strings.ToLower(str(req, "format"))
	if format == "" {
		format = FormatJSON
	}
	b, ct, err := g.svc.ExportRecord(ctx, owner(ctx, req), id, format)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return respond(map[string]any{
		"format":       format,
		"content_type": ct,
		"file_name":    exportFileName(id, format),
		"data":         base64.StdEncoding.EncodeToString(b),
	})
}

func unary(method string, call func(FormsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + FormsServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FormsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FormsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FormsServiceDesc declares the Forms service without generated stubs.
var FormsServiceDesc = grpc.ServiceDesc{
	ServiceName: FormsServiceName,
	HandlerType: (*FormsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListTemplates", FormsServer.ListTemplates),
		unary("Extract", FormsServer.Extract),
		unary("SaveRecord", FormsServer.SaveRecord),
		unary("GetRecord", FormsServer.GetRecord),
		unary("ListRecords", FormsServer.ListRecords),
		unary("UpdateRecord", FormsServer.UpdateRecord),
		unary("DeleteRecord", FormsServer.DeleteRecord),
		unary("ExportRecord", FormsServer.ExportRecord),
	},
}

// LoggingInterceptor logs every unary call with its duration and status.
func LoggingInterceptor(svc *Service) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, rid := withRequestID(ctx, requestIDFromMetadata(ctx))
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			"req_id", rid,
			"method", info.FullMethod,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			svc.logger.Warn("grpc.call.failed", append(attrs, "error", err)...)
		} else {
			svc.logger.Info("grpc.call.ok", attrs...)
		}
		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-request-id"); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func owner(ctx context.Context, req *structpb.Struct) string {
	if o := str(req, "owner_id"); o != "" {
		return o
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(OwnerMetadataKey); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return common.OwnerIDFromContext(ctx)
}

func str(req *structpb.Struct, key string) string {
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func structFields(req *structpb.Struct) map[string]any {
	f := req.GetFields()["fields"].GetStructValue()
	if f == nil {
		return nil
	}
	return f.AsMap()
}

func saveRequest(ctx context.Context, req *structpb.Struct) records.SaveRequest {
	return records.SaveRequest{
		OwnerID:        owner(ctx, req),
		TemplateName:   str(req, "template"),
		SourceFilename: str(req, "file_name"),
		Fields:         structFields(req),
	}
}

func respond(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return s, nil
}

// fieldsValue converts fields to the nested map structpb accepts.
func fieldsValue(f entity.FormFields) map[string]any {
	out := make(map[string]any, len(f.Sections))
	for _, s := range f.Sections {
		sec := make(map[string]any, len(s.Fields))
		for _, fv := range s.Fields {
			sec[fv.Name] = fv.Value
		}
		out[s.Name] = sec
	}
	return out
}

func recordValue(v *entity.FormView) map[string]any {
	return map[string]any{
		"id":              v.ID.String(),
		"owner_id":        v.OwnerID,
		"template":        v.TemplateName,
		"source_filename": v.SourceFilename,
		"created_at":      v.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      v.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"fields":          fieldsValue(v.Fields),
	}
}

func templateValue(t *templates.Template) map[string]any {
	sections := make([]any, 0, len(t.Sections))
	for _, s := range t.Sections {
		fields := make([]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			fields = append(fields, f.Name)
		}
		sections = append(sections, map[string]any{"name": s.Name, "fields": fields})
	}
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"sections":    sections,
	}
}
