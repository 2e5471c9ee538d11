package router

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"
)

// Router dispatches by method and by path patterns whose segments are
// either literals or {name} parameters. Parameters are stored as request
// user values. Routes are tried in registration order.
type Router struct {
	routes     map[string][]route
	notFound   fasthttp.RequestHandler
	notAllowed fasthttp.RequestHandler
}

type route struct {
	pattern  string
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

// PatternKey is the user value holding the matched route pattern.
const PatternKey = "router.pattern"

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Handler satisfies fasthttp.RequestHandler.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if rt, values, ok := r.lookup(string(ctx.Method()), path); ok {
		for k, v := range values {
			ctx.SetUserValue(k, v)
		}
		ctx.SetUserValue(PatternKey, rt.pattern)
		rt.handler(ctx)
		return
	}
	if allowed := r.allowedMethods(path); len(allowed) > 0 {
		ctx.Response.Header.Set("Allow", strings.Join(allowed, ", "))
		if r.notAllowed != nil {
			r.notAllowed(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)    { r.add(fasthttp.MethodGet, path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler)   { r.add(fasthttp.MethodPost, path, h) }
func (r *Router) PUT(path string, h fasthttp.RequestHandler)    { r.add(fasthttp.MethodPut, path, h) }
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.add(fasthttp.MethodDelete, path, h) }

// NotFound registers a handler for unmatched paths.
func (r *Router) NotFound(h fasthttp.RequestHandler) { r.notFound = h }

// MethodNotAllowed registers a handler for paths that match under another
// method. The Allow header is already set when it runs.
func (r *Router) MethodNotAllowed(h fasthttp.RequestHandler) { r.notAllowed = h }

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	r.routes[method] = append(r.routes[method], route{pattern: path, segments: parse(path), handler: h})
}

func (r *Router) lookup(method, path string) (route, map[string]string, bool) {
	for _, rt := range r.routes[method] {
		if values, ok := match(path, rt.segments); ok {
			return rt, values, true
		}
	}
	return route{}, nil, false
}

func (r *Router) allowedMethods(path string) []string {
	var out []string
	for method := range r.routes {
		if _, _, ok := r.lookup(method, path); ok {
			out = append(out, method)
		}
	}
	sort.Strings(out)
	return out
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parse(path string) []segment {
	parts := split(path)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	return segs
}

func match(path string, segs []segment) (map[string]string, bool) {
	parts := split(path)
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}
