/*
 * rvsim - Event scheduler test cases.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package event

import "testing"

var stepCount uint64

// device is a bare-bones device.Device stand-in; only its identity (as a
// map/comparison key for CancelEvent) matters to these tests.
type device struct {
	id   int
	iarg int
	time uint64
}

func (d *device) ReadAt(_ uint64, _ int) (uint64, error) { return 0, nil }
func (d *device) WriteAt(_ uint64, _ int, _ uint64) error { return nil }
func (d *device) Size() uint64                            { return 0 }
func (d *device) Shutdown()                                {}
func (d *device) Debug(_ string) error                     { return nil }

var (
	deviceA = &device{id: 1}
	deviceB = &device{id: 2}
	deviceC = &device{id: 3}
	deviceD = &device{id: 4}
)

func (d *device) aCallback(iarg int) {
	d.iarg = iarg
	d.time = stepCount
}

func (d *device) bCallback(iarg int) {
	d.iarg = iarg
	d.time = stepCount
}

func (d *device) cCallback(iarg int) {
	d.iarg = iarg
	d.time = stepCount
	AddEvent(deviceA, deviceA.aCallback, iarg, iarg)
}

func (d *device) dCallback(iarg int) {
	d.iarg = iarg
	d.time = stepCount
}

func initTest() {
	stepCount = 0
	for _, d := range []*device{deviceA, deviceB, deviceC, deviceD} {
		d.time = 0
		d.iarg = 0
	}
}

func TestAddEvent1(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 10, 1)
	for range 20 {
		stepCount++
		Advance(1)
	}
	if deviceA.time != 10 {
		t.Errorf("Event did not fire at correct time %d got %d", 10, deviceA.time)
	}
	if deviceA.iarg != 1 {
		t.Errorf("Event did not set data correct %d got %d", 1, deviceA.iarg)
	}
}

// Add two events.
func TestAddEvent2(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 10, 1)
	AddEvent(deviceB, deviceB.bCallback, 5, 2)
	for range 20 {
		stepCount++
		Advance(1)
	}
	if deviceA.time != 10 {
		t.Errorf("Event A did not fire at correct time %d got %d", 10, deviceA.time)
	}
	if deviceA.iarg != 1 {
		t.Errorf("Event A did not set data correct %d got %d", 1, deviceA.iarg)
	}
	if deviceB.time != 5 {
		t.Errorf("Event B did not fire at correct time %d got %d", 5, deviceB.time)
	}
	if deviceB.iarg != 2 {
		t.Errorf("Event B did not set data correct %d got %d", 2, deviceB.iarg)
	}
}

// Add event with same time.
func TestAddEvent3(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 10, 1)
	AddEvent(deviceB, deviceB.bCallback, 10, 2)
	for range 20 {
		stepCount++
		Advance(1)
	}
	if deviceA.time != 10 {
		t.Errorf("Event A did not fire at correct time %d got %d", 10, deviceA.time)
	}
	if deviceB.time != 10 {
		t.Errorf("Event B did not fire at correct time %d got %d", 10, deviceB.time)
	}
}

// Add event during event callback.
func TestAddEvent4(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 20, 5)
	AddEvent(deviceC, deviceC.cCallback, 10, 2)
	for range 30 {
		stepCount++
		Advance(1)
	}
	if deviceA.time != 20 {
		t.Errorf("Event A did not fire at correct time %d got %d", 20, deviceA.time)
	}
	if deviceC.time != 10 {
		t.Errorf("Event C did not fire at correct time %d got %d", 10, deviceC.time)
	}
}

// Schedule 3 events, two at the same time and one later, make sure all are correct.
func TestAddEvent5(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 20, 1)
	AddEvent(deviceB, deviceB.bCallback, 20, 2)
	AddEvent(deviceD, deviceD.dCallback, 25, 3)
	for range 30 {
		stepCount++
		Advance(1)
	}
	if deviceA.time != 20 || deviceB.time != 20 || deviceD.time != 25 {
		t.Errorf("events fired out of order: A=%d B=%d D=%d", deviceA.time, deviceB.time, deviceD.time)
	}
}

// Cancel an event.
func TestAddEvent6(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 10, 5)
	AddEvent(deviceB, deviceB.bCallback, 20, 2)
	for range 30 {
		stepCount++
		Advance(1)
		if deviceA.iarg == 5 {
			CancelEvent(deviceB, deviceB.bCallback, 2)
		}
	}
	if deviceA.time != 10 {
		t.Errorf("Event A did not fire at correct time %d got %d", 10, deviceA.time)
	}
	if deviceB.time != 0 {
		t.Errorf("Event B fired despite being cancelled, time=%d", deviceB.time)
	}
}

// Schedule 3 events, cancel one while events are queued.
func TestAddEvent7(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 10, 5)
	AddEvent(deviceB, deviceB.bCallback, 20, 2)
	AddEvent(deviceD, deviceD.dCallback, 30, 3)
	for range 30 {
		stepCount++
		Advance(1)
		if deviceA.iarg == 5 {
			CancelEvent(deviceB, deviceB.bCallback, 2)
		}
	}
	if deviceB.time != 0 {
		t.Errorf("Event B fired despite being cancelled, time=%d", deviceB.time)
	}
	if deviceD.time != 30 {
		t.Errorf("Event D did not fire at correct time %d got %d", 30, deviceD.time)
	}
}

// Event at time zero fires synchronously.
func TestAddEvent9(t *testing.T) {
	initTest()
	AddEvent(deviceA, deviceA.aCallback, 0, 5)
	if deviceA.time != 0 {
		t.Errorf("Event A did not fire at correct time %d got %d", 0, deviceA.time)
	}
	if deviceA.iarg != 5 {
		t.Errorf("Event A did not set data correct %d got %d", 5, deviceA.iarg)
	}
}

func TestAnyEvent(t *testing.T) {
	initTest()
	if AnyEvent() {
		t.Errorf("AnyEvent reported pending work on an empty queue")
	}
	AddEvent(deviceA, deviceA.aCallback, 10, 1)
	if !AnyEvent() {
		t.Errorf("AnyEvent missed a freshly scheduled event")
	}
	Advance(10)
	if AnyEvent() {
		t.Errorf("AnyEvent still reports work after the only event fired")
	}
}
