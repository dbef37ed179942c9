package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameChannel   = "channel"
	FieldNameConnRef   = "connRef"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldChannel 返回一个包含频道标识的 zap 字段。
func FieldChannel(channel string) zap.Field {
	return zap.String(FieldNameChannel, channel)
}

// FieldConnRef 返回一个包含连接引用的 zap 字段。
func FieldConnRef(ref string) zap.Field {
	return zap.String(FieldNameConnRef, ref)
}
