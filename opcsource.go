package scadabridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dernate/gopcxmlda"
)

// MeasurementSink receives measured values in source units.
type MeasurementSink interface {
	UpdateMeasurement(id ChannelID, units float64)
}

// OPCItem binds an OPC XML-DA item to a measured channel.
type OPCItem struct {
	Channel  ChannelID
	ItemName string
}

// OPCSource polls measurements from a plant controller over OPC XML-DA and optionally writes
// the applied setpoint back to it.
type OPCSource struct {
	Server       gopcxmlda.Server
	Items        []OPCItem
	SetpointItem string
	Interval     time.Duration

	setpoints chan float64
}

func NewOPCSource(addr, port string, items []OPCItem, setpointItem string, interval time.Duration) *OPCSource {
	return &OPCSource{
		Server: gopcxmlda.Server{
			Addr:     addr,
			Port:     port,
			LocaleID: "en-us",
			Timeout:  10,
		},
		Items:        items,
		SetpointItem: setpointItem,
		Interval:     interval,
		setpoints:    make(chan float64, 1),
	}
}

func serverAvailable(Server gopcxmlda.Server) (bool, error) {
	var handle string
	status, err := Server.GetStatus(&handle, "")
	if err != nil {
		return false, err
	}
	return status.Body.GetStatusResponse.GetStatusResult.ServerState == "running", nil
}

// Read returns the current value of every configured item.
func (s *OPCSource) Read() (map[ChannelID]float64, error) {
	if len(s.Items) == 0 {
		return nil, nil
	}
	var handle1 string
	var handle2 []string
	options := map[string]interface{}{
		"returnItemName": true,
	}
	items := make([]gopcxmlda.T_Item, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, gopcxmlda.T_Item{ItemName: it.ItemName})
	}
	value, err := s.Server.Read(items, &handle1, &handle2, "", options)
	if err != nil {
		return nil, err
	}
	out := make(map[ChannelID]float64, len(s.Items))
	for i, item := range value.Body.ReadResponse.RItemList.Items {
		if i >= len(s.Items) {
			break
		}
		f, err := toFloat(item.Value.Value)
		if err != nil {
			LogWarn(s.Items[i].Channel.String(), "OPCRead", fmt.Sprintf("%s: %v", s.Items[i].ItemName, err))
			continue
		}
		out[s.Items[i].Channel] = f
	}
	return out, nil
}

// WriteSetpoint queues v for the writer loop; an unsent older value is replaced.
func (s *OPCSource) WriteSetpoint(v float64) {
	if s.SetpointItem == "" {
		return
	}
	for {
		select {
		case s.setpoints <- v:
			return
		default:
		}
		select {
		case <-s.setpoints:
		default:
		}
	}
}

func (s *OPCSource) write(v float64) error {
	items := []gopcxmlda.T_Item{
		{
			ItemName: s.SetpointItem,
			Value: gopcxmlda.T_Value{
				Value: float32(v),
			},
		},
	}
	var ClientRequestHandle string
	var ClientItemHandles []string
	options := map[string]interface{}{
		"ReturnErrorText": true,
		"ReturnItemName":  true,
	}
	_, err := s.Server.Write(items, &ClientRequestHandle, &ClientItemHandles, "", options)
	return err
}

// Run polls every interval and writes queued setpoints until ctx ends.
func (s *OPCSource) Run(ctx context.Context, sink MeasurementSink) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Poll(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.setpoints:
			if err := s.write(v); err != nil {
				LogError(ChannelProductionConstraintSetpoint.String(), "OPCWrite", err.Error())
			} else {
				LogInfo(ChannelProductionConstraintSetpoint.String(), "OPCWrite", fmt.Sprintf("%v on %s", v, s.SetpointItem))
			}
		case <-ticker.C:
			s.Poll(ctx, sink)
		}
	}
}

// Poll reads the items once and hands the values to sink.
func (s *OPCSource) Poll(ctx context.Context, sink MeasurementSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	available, err := serverAvailable(s.Server)
	if err != nil {
		LogError("", "OPCStatus", err.Error())
		return err
	}
	if !available {
		LogWarn("", "OPCStatus", fmt.Sprintf("server %s:%s is not running", s.Server.Addr, s.Server.Port))
		return fmt.Errorf("opc server %s:%s is not running", s.Server.Addr, s.Server.Port)
	}
	values, err := s.Read()
	if err != nil {
		LogError("", "OPCRead", err.Error())
		return err
	}
	for _, it := range s.Items {
		if v, ok := values[it.Channel]; ok {
			sink.UpdateMeasurement(it.Channel, v)
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
