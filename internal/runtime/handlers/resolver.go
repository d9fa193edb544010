package handlers

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

const handleMethod = "Handle"

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	messageType = reflect.TypeOf((*proto.Message)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

type resultShape int

const (
	resultsNone resultShape = iota
	resultsError
	resultsValue
	resultsValueError
)

// plan is the introspected shape of a handler type's Handle method.
type plan struct {
	withContext bool
	payload     reflect.Type
	messageType protoreflect.MessageType
	results     resultShape
}

// Resolver introspects handler types and caches the result per type.
// It is safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	plans map[reflect.Type]*plan
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{plans: make(map[reflect.Type]*plan)}
}

var defaultResolver = NewResolver()

// DefaultResolver returns the process-wide resolver used when none is injected.
func DefaultResolver() *Resolver {
	return defaultResolver
}

// Resolve binds handler using the process-wide resolver.
func Resolve(handler any) (*Binding, error) {
	return defaultResolver.Resolve(handler)
}

// Resolve inspects handler's Handle method and returns a binding for it.
// A *Binding is returned unchanged. Handle must take an optional leading
// context.Context followed by exactly one protobuf message, and return
// nothing, an error, a value, or a value and an error.
func (r *Resolver) Resolve(handler any) (*Binding, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if binding, ok := handler.(*Binding); ok {
		if binding == nil {
			return nil, errspkg.ErrHandlerRequired
		}
		return binding, nil
	}

	value := reflect.ValueOf(handler)
	handlerType := value.Type()
	name := handlerType.String()

	p, err := r.planFor(handlerType)
	if err != nil {
		return nil, errspkg.NewMissingHandleMethod(name, err.Error())
	}

	method := value.MethodByName(handleMethod)
	return &Binding{
		HandlerName: name,
		MessageType: p.messageType,
		Target:      handler,
		invoke: func(ctx context.Context, msg proto.Message) (any, error) {
			return p.call(method, ctx, msg)
		},
	}, nil
}

// Len reports how many handler types have been introspected.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plans)
}

func (r *Resolver) planFor(handlerType reflect.Type) (*plan, error) {
	r.mu.RLock()
	p, ok := r.plans[handlerType]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := introspect(handlerType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.plans[handlerType] = p
	r.mu.Unlock()
	return p, nil
}

func introspect(handlerType reflect.Type) (*plan, error) {
	method, ok := handlerType.MethodByName(handleMethod)
	if !ok {
		return nil, fmt.Errorf("%s has no exported Handle method", handlerType)
	}

	// Method types obtained from the type include the receiver.
	fn := method.Type
	params := make([]reflect.Type, 0, fn.NumIn())
	for i := 0; i < fn.NumIn(); i++ {
		params = append(params, fn.In(i))
	}
	if handlerType.Kind() != reflect.Interface {
		params = params[1:]
	}

	p := &plan{}
	if len(params) > 0 && params[0] == contextType {
		p.withContext = true
		params = params[1:]
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("Handle takes %d payload parameters", len(params))
	}

	payload := params[0]
	if !payload.Implements(messageType) {
		return nil, fmt.Errorf("parameter type %s does not implement proto.Message", payload)
	}
	if payload.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("parameter type %s cannot be instantiated", payload)
	}
	instance, ok := reflect.New(payload.Elem()).Interface().(proto.Message)
	if !ok {
		return nil, fmt.Errorf("parameter type %s cannot be instantiated", payload)
	}
	mt, err := messageTypeOf(instance)
	if err != nil {
		return nil, err
	}
	p.payload = payload
	p.messageType = mt

	switch fn.NumOut() {
	case 0:
		p.results = resultsNone
	case 1:
		if fn.Out(0) == errorType {
			p.results = resultsError
		} else {
			p.results = resultsValue
		}
	case 2:
		if fn.Out(1) != errorType {
			return nil, fmt.Errorf("second result of Handle must be error, got %s", fn.Out(1))
		}
		p.results = resultsValueError
	default:
		return nil, fmt.Errorf("Handle returns %d results", fn.NumOut())
	}
	return p, nil
}

func (p *plan) call(method reflect.Value, ctx context.Context, msg proto.Message) (any, error) {
	arg := reflect.ValueOf(msg)
	if !arg.Type().AssignableTo(p.payload) {
		return nil, fmt.Errorf("cannot pass %s to Handle(%s)", arg.Type(), p.payload)
	}

	args := make([]reflect.Value, 0, 2)
	if p.withContext {
		if ctx == nil {
			ctx = context.Background()
		}
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, arg)

	out := method.Call(args)
	switch p.results {
	case resultsError:
		return nil, asError(out[0])
	case resultsValue:
		return out[0].Interface(), nil
	case resultsValueError:
		return out[0].Interface(), asError(out[1])
	default:
		return nil, nil
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	err, _ := v.Interface().(error)
	return err
}
