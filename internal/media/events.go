package media

/*
#cgo pkg-config: libpipewire-0.3
#include <pipewire/pipewire.h>
#include <spa/param/video/format-utils.h>
#include <spa/buffer/buffer.h>
*/
import "C"

import (
	"unsafe"

	pointer "github.com/mattn/go-pointer"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

//export xdpwStreamStateChanged
func xdpwStreamStateChanged(data unsafe.Pointer, state C.int) {
	s := pointer.Restore(data).(*Stream)
	st := stateFromPW(state)
	s.NodeID = uint32(C.pw_stream_get_node_id(s.stream))
	logger.WithComponent("media").Trace().Int("state", int(state)).Uint32("node_id", s.NodeID).Msg("stream state changed")
	if s.cb.OnStateChange != nil {
		s.cb.OnStateChange(st)
	}
}

//export xdpwStreamParamChanged
func xdpwStreamParamChanged(data unsafe.Pointer, param unsafe.Pointer) {
	s := pointer.Restore(data).(*Stream)
	pod := (*C.struct_spa_pod)(param)

	var format C.uint32_t
	var width, height, fpsNum, fpsDenom C.int32_t
	var modifier C.uint64_t
	var hasModifier, dontFixate C.int

	if C.xdpw_parse_video_format(pod, &format, &width, &height, &fpsNum, &fpsDenom, &modifier, &hasModifier, &dontFixate) < 0 {
		logger.WithComponent("media").Trace().Msg("invalid call in param_changed")
		return
	}

	nf := NegotiatedFormat{
		SPAFormat:        uint32(format),
		Width:            int32(width),
		Height:           int32(height),
		Framerate:        int32(fpsNum) / int32(fpsDenom),
		WantsDMABuf:      hasModifier != 0,
		Modifier:         uint64(modifier),
		ModifierNotFixed: dontFixate != 0,
	}

	if s.cb.OnFormatChange != nil {
		s.cb.OnFormatChange(nf)
	}
}

//export xdpwStreamAddBuffer
func xdpwStreamAddBuffer(data unsafe.Pointer, buffer *C.struct_pw_buffer) {
	s := pointer.Restore(data).(*Stream)

	spaData := (*C.struct_spa_data)(unsafe.Pointer(buffer.buffer.datas))
	var dataType DataType
	if spaData._type&(1<<C.SPA_DATA_DmaBuf) != 0 {
		dataType = DataTypeDmaBuf
	} else if spaData._type&(1<<C.SPA_DATA_MemFd) != 0 {
		dataType = DataTypeMemFd
	} else {
		logger.WithComponent("media").Error().Msg("add_buffer: unsupported data type")
		return
	}

	if s.cb.OnAddBuffer == nil {
		return
	}
	slot, err := s.cb.OnAddBuffer(dataType)
	if err != nil || slot == nil {
		logger.WithComponent("media").Error().Err(err).Msg("OnAddBuffer failed")
		return
	}
	slot.pw = buffer

	s.mu.Lock()
	s.slots[buffer] = slot
	s.mu.Unlock()

	nDatas := int(buffer.buffer.n_datas)
	planes := slot.GPU.Planes
	for i := 0; i < nDatas && i < len(planes); i++ {
		d := (*C.struct_spa_data)(unsafe.Pointer(uintptr(unsafe.Pointer(buffer.buffer.datas)) + uintptr(i)*C.sizeof_struct_spa_data))
		if dataType == DataTypeDmaBuf {
			d._type = C.SPA_DATA_DmaBuf
		} else {
			d._type = C.SPA_DATA_MemFd
		}
		d.maxsize = C.uint32_t(planes[i].Size)
		d.mapoffset = 0
		d.fd = C.int64_t(planes[i].Fd)
		d.flags = 0
		d.data = nil
		d.chunk.size = C.uint32_t(planes[i].Size)
		d.chunk.stride = C.int32_t(planes[i].Stride)
		d.chunk.offset = C.uint32_t(planes[i].Offset)
		if dataType == DataTypeDmaBuf && d.chunk.size == 0 {
			d.chunk.size = 9
		}
	}
}

//export xdpwStreamRemoveBuffer
func xdpwStreamRemoveBuffer(data unsafe.Pointer, buffer *C.struct_pw_buffer) {
	s := pointer.Restore(data).(*Stream)

	s.mu.Lock()
	slot, ok := s.slots[buffer]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.slots, buffer)
	if s.current == slot {
		s.current = nil
	}
	s.mu.Unlock()

	if s.cb.OnRemoveBuffer != nil {
		s.cb.OnRemoveBuffer(slot)
	}

	nDatas := int(buffer.buffer.n_datas)
	for i := 0; i < nDatas; i++ {
		d := (*C.struct_spa_data)(unsafe.Pointer(uintptr(unsafe.Pointer(buffer.buffer.datas)) + uintptr(i)*C.sizeof_struct_spa_data))
		d.fd = -1
	}
}
