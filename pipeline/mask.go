package pipeline

import (
	"reflect"
	"runtime"
	"sync"
)

// Mask is a bitset of which of the 17 pipeline event methods a handler
// implements (spec §4.4, §4.5). HandlerAdded/HandlerRemoved are not part of
// the mask: they always fire, guarded only by the context's added/removed
// flags.
type Mask uint32

const (
	MaskChannelRegistered Mask = 1 << iota
	MaskChannelUnregistered
	MaskChannelActive
	MaskChannelInactive
	MaskChannelRead
	MaskChannelReadComplete
	MaskUserEventTriggered
	MaskChannelWritabilityChanged
	MaskExceptionCaught
	MaskBind
	MaskConnect
	MaskDisconnect
	MaskClose
	MaskDeregister
	MaskRead
	MaskWrite
	MaskFlush
)

const (
	maskInboundAll  = MaskChannelRegistered | MaskChannelUnregistered | MaskChannelActive | MaskChannelInactive | MaskChannelRead | MaskChannelReadComplete | MaskUserEventTriggered | MaskChannelWritabilityChanged | MaskExceptionCaught
	maskOutboundAll = MaskBind | MaskConnect | MaskDisconnect | MaskClose | MaskDeregister | MaskRead | MaskWrite | MaskFlush
	maskAll         = maskInboundAll | maskOutboundAll
)

// maskMethods pairs each maskable event with the Handler method name that
// implements it, for reflection-based override detection.
var maskMethods = [...]struct {
	name string
	bit  Mask
}{
	{"ChannelRegistered", MaskChannelRegistered},
	{"ChannelUnregistered", MaskChannelUnregistered},
	{"ChannelActive", MaskChannelActive},
	{"ChannelInactive", MaskChannelInactive},
	{"ChannelRead", MaskChannelRead},
	{"ChannelReadComplete", MaskChannelReadComplete},
	{"UserEventTriggered", MaskUserEventTriggered},
	{"ChannelWritabilityChanged", MaskChannelWritabilityChanged},
	{"ExceptionCaught", MaskExceptionCaught},
	{"Bind", MaskBind},
	{"Connect", MaskConnect},
	{"Disconnect", MaskDisconnect},
	{"Close", MaskClose},
	{"Deregister", MaskDeregister},
	{"Read", MaskRead},
	{"Write", MaskWrite},
	{"Flush", MaskFlush},
}

var (
	baseAdapterType = reflect.TypeOf(HandlerAdapter{})

	maskCacheMu sync.RWMutex
	maskCache   = map[reflect.Type]Mask{}
)

// maskOf computes (and caches, per concrete handler type) the capability
// mask for h: start with every bit set, then clear any bit whose method h
// does not declare itself (spec §4.5). A method counts as declared when the
// method set of h's type (or, for a pointer, of its element type) resolves
// it to a function that is neither HandlerAdapter's own nor a
// compiler-generated promotion wrapper. Only methods declared on h's own
// type are detected: an override that h inherits by embedding some other
// handler type is reached through such a wrapper and its bit is cleared.
func maskOf(h Handler) Mask {
	t := reflect.TypeOf(h)

	maskCacheMu.RLock()
	m, ok := maskCache[t]
	maskCacheMu.RUnlock()
	if ok {
		return m
	}

	types := []reflect.Type{t}
	if t.Kind() == reflect.Pointer {
		types = append(types, t.Elem())
	}
	m = maskAll
	for _, entry := range maskMethods {
		base, _ := baseAdapterType.MethodByName(entry.name)
		overridden := false
		for _, tt := range types {
			method, ok := tt.MethodByName(entry.name)
			if !ok || method.Func.Pointer() == base.Func.Pointer() {
				continue
			}
			pc := method.Func.Pointer()
			if file, _ := runtime.FuncForPC(pc).FileLine(pc); file != "<autogenerated>" {
				overridden = true
			}
		}
		if !overridden {
			m &^= entry.bit
		}
	}

	maskCacheMu.Lock()
	maskCache[t] = m
	maskCacheMu.Unlock()
	return m
}
