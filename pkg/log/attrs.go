package log

import "log/slog"

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func NodeType(typ string) slog.Attr {
	return slog.String("node_type", typ)
}

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func MsgID(id string) slog.Attr {
	return slog.String("msg_id", id)
}

func Rev(rev string) slog.Attr {
	return slog.String("rev", rev)
}

func DeployType[T ~string](typ T) slog.Attr {
	return slog.String("deploy_type", string(typ))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
