package diag

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/json"
	"github.com/lk2023060901/danmu-garden-chat/pkg/log"
	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

const (
	MetricsPath  = "/metrics"
	ChannelsPath = "/debug/channels"

	dumpTimeout = 3 * time.Second
)

// Dumper 提供频道快照，由 chat.Router 实现。
type Dumper interface {
	Dump(ctx context.Context) ([]chat.ChannelInfo, error)
}

var _ Dumper = (*chat.Router)(nil)

// RenderChannels 以文本表格输出频道快照。
func RenderChannels(w io.Writer, infos []chat.ChannelInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Channel", "Name", "Members", "System"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, info := range infos {
		table.Append([]string{
			info.ID.String(),
			info.Name,
			strconv.Itoa(info.Members),
			strconv.FormatBool(info.IsSystem),
		})
	}
	table.Render()
}

type channelRow struct {
	Channel  string `json:"channel"`
	Name     string `json:"name"`
	Members  int    `json:"members"`
	IsSystem bool   `json:"is_system"`
}

// NewMux 返回诊断用的 HTTP 路由：
//   - /metrics        ：prometheus 指标，来自 gatherer；
//   - /debug/channels ：频道快照，默认文本表格，?format=json 时输出 JSON。
func NewMux(d Dumper, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(ChannelsPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), dumpTimeout)
		defer cancel()

		infos, err := d.Dump(ctx)
		if err != nil {
			log.Ctx(ctx).Warn("dump channels failed", zap.Error(err))
			status := http.StatusInternalServerError
			if merr.IsCanceledOrTimeout(err) || merr.Code(err) == merr.Code(merr.ErrServiceUnavailable) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}

		if r.URL.Query().Get("format") == "json" {
			rows := make([]channelRow, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, channelRow{
					Channel:  info.ID.String(),
					Name:     info.Name,
					Members:  info.Members,
					IsSystem: info.IsSystem,
				})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(rows)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		RenderChannels(w, infos)
	})
	return mux
}
