package messaging

// messageLog keeps records in insertion order; the tail is the most recent.
type messageLog struct {
	records []*Message
}

func (l *messageLog) append(message *Message) {
	l.records = append(l.records, message)
}

func (l *messageLog) len() int {
	return len(l.records)
}

func (l *messageLog) find(id MessageID) (*Message, int) {
	for index, record := range l.records {
		if record.ID == id {
			return record, index
		}
	}
	return nil, -1
}

func (l *messageLog) remove(id MessageID) bool {
	_, index := l.find(id)
	if index < 0 {
		return false
	}
	copy(l.records[index:], l.records[index+1:])
	l.records[len(l.records)-1] = nil
	l.records = l.records[:len(l.records)-1]
	return true
}

// newestFirst returns the record at reverse index i, where 0 is the tail.
func (l *messageLog) newestFirst(i int) *Message {
	return l.records[len(l.records)-1-i]
}

// window returns the reverse-chronological slice [start, start+PageSize) and the end marker.
func (l *messageLog) window(start int, requester UserID) ([]MessageView, int) {
	total := l.len()
	end := start + PageSize
	views := make([]MessageView, 0, min(PageSize, total-start))
	for i := start; i < total && i < end; i++ {
		views = append(views, viewFor(l.newestFirst(i), requester))
	}
	if end >= total {
		end = EndOfLog
	}
	return views, end
}
