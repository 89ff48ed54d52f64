// Package pose defines the fixed joint schema produced by the keypoint
// detector and selects the vertical coordinate tracked for rep detection.
package pose

// JointCount is the number of joints the detector reports per subject (COCO order).
const JointCount = 17

// Joint is a single detected joint in frame pixel coordinates.
// Present is false when the detector did not report the joint at all.
type Joint struct {
	X          float64
	Y          float64
	Confidence float64
	Present    bool
}

// Clears reports whether the joint is present and its confidence is above threshold.
func (j Joint) Clears(threshold float64) bool {
	return j.Present && j.Confidence > threshold
}

// JointSample is one subject's joints for one frame.
type JointSample struct {
	Nose          Joint
	LeftEye       Joint
	RightEye      Joint
	LeftEar       Joint
	RightEar      Joint
	LeftShoulder  Joint
	RightShoulder Joint
	LeftElbow     Joint
	RightElbow    Joint
	LeftWrist     Joint
	RightWrist    Joint
	LeftHip       Joint
	RightHip      Joint
	LeftKnee      Joint
	RightKnee     Joint
	LeftAnkle     Joint
	RightAnkle    Joint
}

// NamedJoint pairs a joint with its wire name.
type NamedJoint struct {
	Name  string
	Joint Joint
}

// Joints returns the sample's joints in detector order with their wire names.
func (s *JointSample) Joints() []NamedJoint {
	return []NamedJoint{
		{"nose", s.Nose},
		{"eye_l", s.LeftEye},
		{"eye_r", s.RightEye},
		{"ear_l", s.LeftEar},
		{"ear_r", s.RightEar},
		{"shoulder_l", s.LeftShoulder},
		{"shoulder_r", s.RightShoulder},
		{"elbow_l", s.LeftElbow},
		{"elbow_r", s.RightElbow},
		{"wrist_l", s.LeftWrist},
		{"wrist_r", s.RightWrist},
		{"hip_l", s.LeftHip},
		{"hip_r", s.RightHip},
		{"knee_l", s.LeftKnee},
		{"knee_r", s.RightKnee},
		{"ankle_l", s.LeftAnkle},
		{"ankle_r", s.RightAnkle},
	}
}

// Keypoint is one raw detector output triple.
type Keypoint struct {
	X          float64
	Y          float64
	Confidence float64
}

// FromKeypoints builds a JointSample from detector-ordered keypoints.
// Missing trailing keypoints leave the corresponding joints absent.
func FromKeypoints(kps []Keypoint) JointSample {
	var s JointSample
	slots := [JointCount]*Joint{
		&s.Nose, &s.LeftEye, &s.RightEye, &s.LeftEar, &s.RightEar,
		&s.LeftShoulder, &s.RightShoulder, &s.LeftElbow, &s.RightElbow,
		&s.LeftWrist, &s.RightWrist, &s.LeftHip, &s.RightHip,
		&s.LeftKnee, &s.RightKnee, &s.LeftAnkle, &s.RightAnkle,
	}
	for i, kp := range kps {
		if i >= JointCount {
			break
		}
		*slots[i] = Joint{X: kp.X, Y: kp.Y, Confidence: kp.Confidence, Present: true}
	}
	return s
}

// Detection is the detector's answer for one frame.
type Detection struct {
	Width    int
	Height   int
	Subjects []JointSample
}

// Primary returns the first detected subject. Only one lifter is tracked.
func (d Detection) Primary() (JointSample, bool) {
	if len(d.Subjects) == 0 {
		return JointSample{}, false
	}
	return d.Subjects[0], true
}

// Overlay returns joint name -> [x/width, y/height] for joints clearing the
// threshold. It returns nil when nothing qualifies or the frame size is unknown.
func Overlay(s JointSample, width, height int, threshold float64) map[string][2]float64 {
	if width <= 0 || height <= 0 {
		return nil
	}
	var out map[string][2]float64
	for _, nj := range s.Joints() {
		if !nj.Joint.Clears(threshold) {
			continue
		}
		if out == nil {
			out = make(map[string][2]float64, JointCount)
		}
		out[nj.Name] = [2]float64{nj.Joint.X / float64(width), nj.Joint.Y / float64(height)}
	}
	return out
}
